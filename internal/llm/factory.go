// Package llm provides integration with LLM APIs.
// This file contains the factory for creating a Generator from config.
package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Config selects and configures the generation provider.
type Config struct {
	// Provider is "openai" or "gemini".
	Provider Provider
	// Model overrides the provider's default model when non-empty.
	Model string
	// OpenAIAPIKey is required when Provider is "openai".
	OpenAIAPIKey string
	// GeminiAPIKey is required when Provider is "gemini".
	GeminiAPIKey string
}

// NewGenerator creates the Generator named by cfg.Provider.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		g, err := newOpenAIGenerator(cfg.OpenAIAPIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "generator configured",
			"provider", g.Provider(),
			"model", g.Model())
		return g, nil
	case ProviderGemini:
		g, err := newGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "generator configured",
			"provider", g.Provider(),
			"model", g.Model())
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.Provider)
	}
}

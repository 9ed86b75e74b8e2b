// Package llm provides integration with LLM APIs.
// This file contains the Gemini implementation of the Generator interface.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	apperrors "github.com/nutrilog/nutri-linebot-go/internal/errors"
)

// geminiGenerator implements Generator against Google's Gemini API.
type geminiGenerator struct {
	client *genai.Client
	model  string
}

// newGeminiGenerator creates a Gemini-backed generator.
func newGeminiGenerator(ctx context.Context, apiKey, model string) (*geminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", apperrors.ErrMissingCredentials)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiGenerator{
		client: client,
		model:  model,
	}, nil
}

// Generate performs one generation call. The system context rides in
// the SystemInstruction slot; history and the new turn become the
// content list. Gemini names the assistant role "model".
func (g *geminiGenerator) Generate(ctx context.Context, systemContext string, history []Turn, newTurn Turn) (string, error) {
	contents := append(historyContents(history), g.userContent(newTurn))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemContext, genai.RoleUser),
		Temperature:       genai.Ptr[float32](DefaultTemperature),
		MaxOutputTokens:   DefaultMaxOutputTokens,
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	duration := time.Since(start)

	if err != nil {
		return "", apperrors.NewGenerationError(ProviderGemini.String(), g.model, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", apperrors.NewGenerationError(ProviderGemini.String(), g.model, apperrors.ErrEmptyCompletion)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	result := strings.TrimSpace(sb.String())
	if result == "" {
		return "", apperrors.NewGenerationError(ProviderGemini.String(), g.model, apperrors.ErrEmptyCompletion)
	}

	if resp.UsageMetadata != nil {
		slog.DebugContext(ctx, "chat completion succeeded",
			"provider", ProviderGemini,
			"model", g.model,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", duration.Milliseconds())
	}

	return result, nil
}

// historyContents converts stored turns into Gemini contents. The
// assistant role maps to "model".
func historyContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return contents
}

// userContent builds the new user turn, attaching the image inline
// when present.
func (g *geminiGenerator) userContent(turn Turn) *genai.Content {
	if !turn.HasImage() {
		return genai.NewContentFromText(turn.Content, genai.RoleUser)
	}

	parts := []*genai.Part{}
	if turn.Content != "" {
		parts = append(parts, genai.NewPartFromText(turn.Content))
	}
	parts = append(parts, genai.NewPartFromBytes(turn.ImageData, turn.ImageMIME))

	return genai.NewContentFromParts(parts, genai.RoleUser)
}

// Provider returns the provider type for this generator.
func (g *geminiGenerator) Provider() Provider {
	return ProviderGemini
}

// Model returns the configured model name.
func (g *geminiGenerator) Model() string {
	return g.model
}

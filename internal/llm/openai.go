// Package llm provides integration with LLM APIs.
// This file contains the OpenAI implementation of the Generator interface.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	apperrors "github.com/nutrilog/nutri-linebot-go/internal/errors"
)

// openaiGenerator implements Generator against OpenAI's chat
// completions API, including vision input for photo turns.
type openaiGenerator struct {
	client openai.Client
	model  string
}

// newOpenAIGenerator creates an OpenAI-backed generator.
func newOpenAIGenerator(apiKey, model string) (*openaiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", apperrors.ErrMissingCredentials)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &openaiGenerator{
		client: client,
		model:  model,
	}, nil
}

// Generate performs one chat completion call. No retries: the reply
// deadline is tight and the caller has a fallback message.
func (g *openaiGenerator) Generate(ctx context.Context, systemContext string, history []Turn, newTurn Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemContext))

	for _, turn := range history {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	messages = append(messages, g.userMessage(newTurn))

	params := openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    messages,
		Temperature: openai.Float(DefaultTemperature),
		MaxTokens:   openai.Int(DefaultMaxOutputTokens),
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)

	if err != nil {
		return "", apperrors.NewGenerationError(ProviderOpenAI.String(), g.model, err)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationError(ProviderOpenAI.String(), g.model, apperrors.ErrEmptyCompletion)
	}

	result := strings.TrimSpace(resp.Choices[0].Message.Content)
	if result == "" {
		return "", apperrors.NewGenerationError(ProviderOpenAI.String(), g.model, apperrors.ErrEmptyCompletion)
	}

	slog.DebugContext(ctx, "chat completion succeeded",
		"provider", ProviderOpenAI,
		"model", g.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration_ms", duration.Milliseconds())

	return result, nil
}

// userMessage builds the new user turn, attaching the image as a
// base64 data URI when present.
func (g *openaiGenerator) userMessage(turn Turn) openai.ChatCompletionMessageParamUnion {
	if !turn.HasImage() {
		return openai.UserMessage(turn.Content)
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s",
		turn.ImageMIME,
		base64.StdEncoding.EncodeToString(turn.ImageData))

	parts := []openai.ChatCompletionContentPartUnionParam{}
	if turn.Content != "" {
		parts = append(parts, openai.TextContentPart(turn.Content))
	}
	parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
		URL: dataURI,
	}))

	return openai.UserMessage(parts)
}

// Provider returns the provider type for this generator.
func (g *openaiGenerator) Provider() Provider {
	return ProviderOpenAI
}

// Model returns the configured model name.
func (g *openaiGenerator) Model() string {
	return g.model
}

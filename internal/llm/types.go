// Package llm provides integration with LLM APIs for conversational
// generation.
//
// Architecture:
// - OpenAI: Uses github.com/openai/openai-go/v3 (official SDK)
// - Gemini: Uses google.golang.org/genai (official SDK)
//
// Both providers implement the same Generator interface: a single
// chat-completion call over a system context, a bounded history window
// and the new user turn (optionally carrying an image). Calls are
// single-shot; delivery deadlines leave no room for retry loops, and
// the caller falls back to a canned reply on failure.
package llm

import "context"

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderOpenAI represents OpenAI's chat completions API.
	ProviderOpenAI Provider = "openai"
	// ProviderGemini represents Google's Gemini API.
	ProviderGemini Provider = "gemini"
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks turns authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks turns authored by the model.
	RoleAssistant Role = "assistant"
)

// Turn is one conversation turn sent to the model.
type Turn struct {
	Role    Role
	Content string

	// ImageData carries raw image bytes for multimodal turns.
	// Only meaningful on the new user turn; history is text-only.
	ImageData []byte
	// ImageMIME is the content type of ImageData, e.g. "image/jpeg".
	ImageMIME string
}

// HasImage reports whether the turn carries image content.
func (t Turn) HasImage() bool {
	return len(t.ImageData) > 0
}

// Generator produces one assistant reply from the assembled context.
//
// systemContext is the full system prompt (persona, profile snapshot,
// daily aggregates). history is the prior turns in chronological
// order. newTurn is the incoming user message.
type Generator interface {
	// Generate returns the raw model output, tags and all.
	Generate(ctx context.Context, systemContext string, history []Turn, newTurn Turn) (string, error)
	// Provider returns the provider type for logging and metrics.
	Provider() Provider
	// Model returns the configured model name.
	Model() string
}

// Generation parameter defaults shared by both providers. Low
// temperature keeps the tag blocks well-formed; the token cap bounds
// reply length for a chat surface.
const (
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 1024

	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.5-flash"
)

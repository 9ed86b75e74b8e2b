package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestGenerationErrorWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewGenerationError("openai", "gpt-4o-mini", cause)

	if !stderrors.Is(err, cause) {
		t.Error("GenerationError should unwrap to its cause")
	}

	var genErr *GenerationError
	if !stderrors.As(err, &genErr) {
		t.Fatal("errors.As should find *GenerationError")
	}
	if genErr.Provider != "openai" {
		t.Errorf("Expected provider openai, got %s", genErr.Provider)
	}
	if !strings.Contains(err.Error(), "gpt-4o-mini") {
		t.Errorf("Error message should include model: %s", err.Error())
	}
}

func TestDeliveryErrorWrapping(t *testing.T) {
	cause := stderrors.New("invalid reply token")
	err := NewDeliveryError("reply", cause)

	if !stderrors.Is(err, cause) {
		t.Error("DeliveryError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "mode=reply") {
		t.Errorf("Error message should include mode: %s", err.Error())
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetch profile: %w", ErrNotFound)
	if !stderrors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped ErrNotFound should match with errors.Is")
	}

	doubly := fmt.Errorf("pipeline: %w", NewGenerationError("gemini", "m", ErrEmptyCompletion))
	if !stderrors.Is(doubly, ErrEmptyCompletion) {
		t.Error("ErrEmptyCompletion should survive double wrapping")
	}
}

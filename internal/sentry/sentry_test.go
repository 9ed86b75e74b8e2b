package sentry

import (
	"testing"
	"time"
)

func TestInitializeEmptyDSN(t *testing.T) {
	err := Initialize(Config{DSN: ""})
	if err != nil {
		t.Errorf("Expected nil error for empty DSN, got %v", err)
	}
	if IsEnabled() {
		t.Error("Expected IsEnabled() to return false when DSN is empty")
	}
}

func TestInitializeValidConfig(t *testing.T) {
	// Cannot use t.Parallel() as Sentry uses global state
	err := Initialize(Config{
		DSN:         "https://examplekey@o0.ingest.sentry.io/0",
		Environment: "test",
		SampleRate:  1.0,
	})
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected IsEnabled() to return true after initialization")
	}

	Flush(time.Second)
}

func TestInitializeDefaultSampleRate(t *testing.T) {
	// Zero sample rate should default to 1.0 rather than drop everything
	err := Initialize(Config{
		DSN: "https://examplekey@o0.ingest.sentry.io/0",
	})
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	Flush(time.Second)
}

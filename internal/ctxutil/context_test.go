package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestUserIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := GetUserID(ctx); got != "" {
		t.Errorf("Expected empty user ID on fresh context, got %q", got)
	}

	ctx = WithUserID(ctx, "U1234567890")
	if got := GetUserID(ctx); got != "U1234567890" {
		t.Errorf("Expected U1234567890, got %q", got)
	}
}

func TestEventIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if _, ok := GetEventID(ctx); ok {
		t.Error("Expected no event ID on fresh context")
	}

	ctx = WithEventID(ctx, "01FZ74ASS536FW97EX7P26F5QX")
	eventID, ok := GetEventID(ctx)
	if !ok || eventID != "01FZ74ASS536FW97EX7P26F5QX" {
		t.Errorf("Expected event ID round trip, got %q (ok=%v)", eventID, ok)
	}
}

func TestPreserveTracingDetachesCancellation(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	parent = WithUserID(parent, "U42")
	parent = WithEventID(parent, "evt-1")

	detached := PreserveTracing(parent)
	cancel()

	if detached.Err() != nil {
		t.Error("Detached context should not inherit parent cancellation")
	}
	if got := GetUserID(detached); got != "U42" {
		t.Errorf("Expected preserved user ID, got %q", got)
	}
	if eventID, ok := GetEventID(detached); !ok || eventID != "evt-1" {
		t.Errorf("Expected preserved event ID, got %q", eventID)
	}
}

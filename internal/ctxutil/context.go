// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey  contextKey = "ctxutil.userID"
	eventIDKey contextKey = "ctxutil.eventID"
)

// WithUserID adds a user ID to the context.
// User ID comes from LINE webhook events and is used for log correlation
// and per-user persistence.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context.
// Returns the user ID if found, empty string otherwise.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(userIDKey); v != nil {
		if userID, ok := v.(string); ok && userID != "" {
			return userID
		}
	}
	return ""
}

// WithEventID adds a webhook event ID to the context for tracing.
// The event ID correlates pipeline logs with the LINE delivery that
// triggered them, including redeliveries.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// GetEventID retrieves the event ID from the context.
// Returns the event ID and true if found, empty string and false otherwise.
func GetEventID(ctx context.Context) (string, bool) {
	eventID, ok := ctx.Value(eventIDKey).(string)
	return eventID, ok
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Use for async operations that need tracing but must outlive the parent
// context, such as event processing that continues after the webhook HTTP
// response is sent.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != "" {
		newCtx = WithUserID(newCtx, userID)
	}
	if eventID, ok := GetEventID(ctx); ok && eventID != "" {
		newCtx = WithEventID(newCtx, eventID)
	}

	return newCtx
}

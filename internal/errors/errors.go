// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrMissingCredentials indicates required credentials are not configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrEmptyCompletion indicates the generation API returned no usable text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// GenerationError represents a failed call to the generation API with
// enough context to diagnose the triggering event.
type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation error (provider=%s, model=%s): %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError creates a new generation error.
func NewGenerationError(provider, model string, err error) *GenerationError {
	return &GenerationError{
		Provider: provider,
		Model:    model,
		Err:      err,
	}
}

// DeliveryError represents a failed reply or push delivery attempt.
type DeliveryError struct {
	Mode string // "reply" or "push"
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error (mode=%s): %v", e.Mode, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a new delivery error.
func NewDeliveryError(mode string, err error) *DeliveryError {
	return &DeliveryError{Mode: mode, Err: err}
}

// Package llm wraps the language-model providers used for extraction.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider completes a prompt with free text.
type Provider interface {
	Complete(ctx context.Context, prompt string, cfg Config) (string, error)
}

// Config carries per-call generation settings. An empty Model selects the
// provider's default model.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	RateLimited ErrorKind = "rate_limited"
	NotFound    ErrorKind = "not_found"
	Transient   ErrorKind = "transient"
)

// ProviderError is returned for every failed provider call.
type ProviderError struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider error (%s, model %q): %v", e.Kind, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf returns the ProviderError kind wrapped in err, or "" if none.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt string, cfg Config) (string, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, prompt string, cfg Config) (string, error) {
	return f(ctx, prompt, cfg)
}

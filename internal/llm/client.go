// Package llm is the gateway to LLM providers. The pipeline depends only on
// the Client interface; provider selection happens at construction via the
// factory. Retry policy lives inside the provider clients, not in callers.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Options bound a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions returns the options used when the caller passes zeros.
func DefaultOptions() Options {
	return Options{Temperature: 0.1, MaxTokens: 4096}
}

// normalize fills zero fields from defaults.
func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Temperature < 0 {
		o.Temperature = def.Temperature
	}
	return o
}

// Client defines the single call contract: prompt in, text out, or a
// provider error.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
}

// ProviderError is a typed failure from an LLM provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// IsProviderError reports whether err originated from a provider, and
// returns the typed error if so.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

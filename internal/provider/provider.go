// Package provider adapts remote AI chat-completion backends into
// validated token scores. Two adapters exist (Groq, Gemini); both share
// the prompt contract and reply parsing.
package provider

import (
	"context"
	"fmt"

	"token-scout/internal/domain"
)

// Adapter turns a TokenSnapshot into a validated AiScore via one
// remote model.
type Adapter interface {
	// Name returns the provider identifier, e.g. "groq".
	Name() string

	// GetScore prompts the model and returns its validated opinion.
	// Failures surface as *ProviderError.
	GetScore(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.ModelResponse, error)
}

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindTransport covers HTTP/network failures.
	KindTransport ErrorKind = "transport"
	// KindRateLimit covers quota exhaustion after all retries.
	KindRateLimit ErrorKind = "rate_limit"
	// KindBadReply covers replies that stay syntactically invalid
	// after the one repair follow-up.
	KindBadReply ErrorKind = "bad_reply"
	// KindSchema covers parsed replies failing AiScore validation.
	// Schema violations are hard failures, never coerced.
	KindSchema ErrorKind = "schema"
)

// ProviderError is the uniform failure type adapters return.
// The consensus router converts it into a synthetic low-trust fallback.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// newError wraps err as a ProviderError.
func newError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

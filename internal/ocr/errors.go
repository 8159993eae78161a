package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoUsableProvider matches an AllProvidersFailedError in which no
// provider was even attempted because none was configured.
var ErrNoUsableProvider = errors.New("no usable OCR provider")

// Kind classifies a provider failure.
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindAuth             Kind = "auth"
	KindQuota            Kind = "quota"
	KindMalformed        Kind = "malformed"
	KindUnavailable      Kind = "unavailable"
	KindInsufficientText Kind = "insufficient_text"
	KindFailed           Kind = "failed"
)

// ProviderError is one provider's failure. The chain recovers from it by
// moving on to the next provider.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError is a helper for adapters.
func NewProviderError(provider string, kind Kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// AllProvidersFailedError holds exactly one entry per attempted provider.
type AllProvidersFailedError struct {
	Errors  []*ProviderError
	Skipped []string
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Errors) == 0 {
		if len(e.Skipped) == 0 {
			return ErrNoUsableProvider.Error() + " (none registered)"
		}
		return fmt.Sprintf("%s (not configured: %s)", ErrNoUsableProvider, strings.Join(e.Skipped, ", "))
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		msgs = append(msgs, pe.Error())
	}
	return "all OCR providers failed: " + strings.Join(msgs, "; ")
}

func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrNoUsableProvider && len(e.Errors) == 0
}

func (e *AllProvidersFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, pe := range e.Errors {
		out = append(out, pe)
	}
	return out
}

// Reasons lists one human-readable line per provider, for
// Statement.ProcessingErrors.
func (e *AllProvidersFailedError) Reasons() []string {
	if len(e.Errors) == 0 {
		return []string{e.Error()}
	}
	out := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		out = append(out, "OCR provider "+pe.Error())
	}
	return out
}

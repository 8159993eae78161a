// Package ocr runs document bytes through an ordered chain of OCR providers,
// falling back to the next one when a provider fails.
package ocr

import (
	"context"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// Provider transcribes a document image or scanned PDF.
type Provider interface {
	Name() string
	// Configured reports whether credentials and settings are present.
	// Unconfigured providers are skipped, not counted as failures.
	Configured() bool
	Transcribe(ctx context.Context, data []byte, mimeType string) (*Result, error)
}

// LineHypothesis is one recognized line.
type LineHypothesis struct {
	Text       string   `json:"text"`
	Page       int      `json:"page"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Result is transient. It lives for one pipeline run.
type Result struct {
	Provider   string
	Text       string
	Confidence *float64
	Lines      []LineHypothesis
	Raw        *domain.ProviderOutput

	// Suppressed holds the errors of providers tried before this one.
	Suppressed []*ProviderError
	Skipped    []string
}

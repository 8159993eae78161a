package domain

import (
	"time"
)

// StatementStatus is the lifecycle state of a statement.
type StatementStatus string

const (
	StatusPending    StatementStatus = "pending"
	StatusProcessing StatementStatus = "processing"
	StatusCompleted  StatementStatus = "completed"
	StatusFailed     StatementStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s StatementStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a run.
func (s StatementStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExtractionTextLayer marks statements whose text came from the embedded PDF
// text layer rather than an OCR provider.
const ExtractionTextLayer = "text_layer"

// SourceDocument points at the uploaded bytes in the document store.
type SourceDocument struct {
	Path           string `json:"path"`
	MimeType       string `json:"mime_type"`
	Filename       string `json:"filename,omitempty"`
	ChecksumSHA256 string `json:"checksum_sha256,omitempty"`
}

// Statement is one uploaded bank statement and its processing state.
type Statement struct {
	ID             string `json:"id"`
	AccountRef     string `json:"account_ref"`
	BankName       string `json:"bank_name"`
	Currency       string `json:"currency"`
	StatementMonth int    `json:"statement_month"`
	StatementYear  int    `json:"statement_year"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	Source SourceDocument `json:"source"`

	Status             StatementStatus `json:"status"`
	ProcessingErrors   []string        `json:"processing_errors"`
	ProcessingWarnings []string        `json:"processing_warnings,omitempty"`

	// ActiveRunID identifies the transaction set currently considered live.
	ActiveRunID      string `json:"active_run_id,omitempty"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	LowConfidence    bool   `json:"low_confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s *Statement) Clone() *Statement {
	if s == nil {
		return nil
	}
	c := *s
	c.ProcessingErrors = append([]string(nil), s.ProcessingErrors...)
	c.ProcessingWarnings = append([]string(nil), s.ProcessingWarnings...)
	if s.PeriodStart != nil {
		t := *s.PeriodStart
		c.PeriodStart = &t
	}
	if s.PeriodEnd != nil {
		t := *s.PeriodEnd
		c.PeriodEnd = &t
	}
	return &c
}

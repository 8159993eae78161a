package domain

import (
	"encoding/json"
	"time"
)

// Notification is emitted once a statement reaches a terminal state.
type Notification struct {
	ID               string          `json:"id"`
	StatementID      string          `json:"statement_id"`
	Status           StatementStatus `json:"status"`
	TransactionCount int             `json:"transaction_count"`
	FlaggedCount     int             `json:"flagged_count"`
	Errors           []string        `json:"errors,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Output kinds recorded for a run.
const (
	OutputGeminiTranscript = "gemini_transcript"
	OutputTesseractBoxes   = "tesseract_boxes"
	OutputPDFTextLayer     = "pdf_text_layer"
)

// ProviderOutput keeps the raw payload of whatever produced the statement
// text. Only the fields the pipeline consumes are ever validated; the rest is
// stored as-is for diagnostics.
type ProviderOutput struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunRecord describes one pipeline attempt for a statement.
type RunRecord struct {
	RunID        string          `json:"run_id"`
	StatementID  string          `json:"statement_id"`
	Provider     string          `json:"provider"`
	Status       StatementStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Text         string          `json:"text,omitempty"`
	Output       *ProviderOutput `json:"output,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

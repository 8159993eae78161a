package domain

import (
	"time"
)

// Direction says whether money left or entered the account.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Transaction represents one normalized statement line.
// Amounts are integer minor units (pence, cents). Debits are negative.
type Transaction struct {
	ID          string    `json:"id"`
	StatementID string    `json:"statement_id"`
	RunID       string    `json:"run_id"`
	Sequence    int       `json:"sequence"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Direction   Direction `json:"direction"`
	Category    *string   `json:"category,omitempty"`

	BalanceAfter *int64 `json:"balance_after,omitempty"`

	// OriginalAmount is the signed value as read from the document, before any
	// scale correction. CorrectedAmount is the best guess for a flagged line.
	OriginalAmount  int64    `json:"original_amount"`
	CorrectedAmount *int64   `json:"corrected_amount,omitempty"`
	Flagged         bool     `json:"flagged"`
	Warnings        []string `json:"warnings,omitempty"`

	RawLine string `json:"raw_line,omitempty"`
}

// Magnitude returns the absolute amount in minor units.
func (t Transaction) Magnitude() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

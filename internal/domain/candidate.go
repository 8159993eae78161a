package domain

import "time"

// Candidate is a transaction-shaped record pulled out of raw statement text,
// before amounts are converted to minor units and checked for scale errors.
type Candidate struct {
	Sequence    int       `json:"sequence"`
	Line        int       `json:"line"`
	Page        int       `json:"page"`
	Date        time.Time `json:"date"`
	DateText    string    `json:"date_text"`
	Description string    `json:"description"`
	AmountText  string    `json:"amount_text"`
	BalanceText string    `json:"balance_text,omitempty"`

	// Direction is empty when the line carried no signal at all.
	Direction Direction `json:"direction,omitempty"`
	Category  *string   `json:"category,omitempty"`
	RawLine   string    `json:"raw_line"`
}

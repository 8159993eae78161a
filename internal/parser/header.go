package parser

import (
	"regexp"
	"strings"
	"time"
)

// Header holds account details printed at the top of a statement.
type Header struct {
	AccountNumber  string     `json:"account_number,omitempty"`
	SortCode       string     `json:"sort_code,omitempty"`
	IBAN           string     `json:"iban,omitempty"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	OpeningBalance string     `json:"opening_balance,omitempty"`
	ClosingBalance string     `json:"closing_balance,omitempty"`
}

var (
	accountNumberLabeled = regexp.MustCompile(`(?i)account\s*(?:number|no\.?|num)\s*:?\s*(\d[\d ]{5,14}\d)`)
	accountNumberBare    = regexp.MustCompile(`\b(\d{8})\b`)
	sortCodePattern      = regexp.MustCompile(`\b(\d{2}-\d{2}-\d{2})\b`)
	ibanPattern          = regexp.MustCompile(`(?i)\bIBAN\s*:?\s*([A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?)`)

	periodPattern = regexp.MustCompile(`(?i)(` + textDateExpr + `|` + numDateExpr + `|` + usTextDateExpr + `|` + shortDateExpr + `)\s*(?:-|to|until)\s*(` +
		textDateExpr + `|` + numDateExpr + `|` + usTextDateExpr + `)`)

	openingBalancePattern = regexp.MustCompile(`(?i)(?:opening|start|previous)\s+balance[^\d(£$€-]*(` + amountExpr + `)`)
	closingBalancePattern = regexp.MustCompile(`(?i)(?:closing|end|new)\s+balance[^\d(£$€-]*(` + amountExpr + `)`)
	broughtForwardPattern = regexp.MustCompile(`(?i)balance\s+brought\s+forward[^\d(£$€-]*(` + amountExpr + `)`)
)

// parseHeader scans the whole document for account identifiers, the
// statement period and the opening and closing balances.
func parseHeader(text string, monthFirst bool) Header {
	var h Header

	if m := accountNumberLabeled.FindStringSubmatch(text); m != nil {
		h.AccountNumber = strings.ReplaceAll(m[1], " ", "")
	} else if m := accountNumberBare.FindStringSubmatch(text); m != nil {
		h.AccountNumber = m[1]
	}
	if m := sortCodePattern.FindStringSubmatch(text); m != nil {
		h.SortCode = m[1]
	}
	if m := ibanPattern.FindStringSubmatch(text); m != nil {
		h.IBAN = strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))
	}

	if m := periodPattern.FindStringSubmatch(text); m != nil {
		dc := dateContext{monthFirst: monthFirst}
		end, okEnd := parseDate(m[2], dc)
		if okEnd {
			h.PeriodEnd = &end
			dc.year = end.Year()
			dc.lastMonth = end.Month()
		}
		if start, ok := parseDate(m[1], dc); ok {
			h.PeriodStart = &start
		}
	}

	if m := openingBalancePattern.FindStringSubmatch(text); m != nil {
		h.OpeningBalance = m[1]
	} else if m := broughtForwardPattern.FindStringSubmatch(text); m != nil {
		h.OpeningBalance = m[1]
	}
	if m := closingBalancePattern.FindStringSubmatch(text); m != nil {
		h.ClosingBalance = m[1]
	}

	return h
}

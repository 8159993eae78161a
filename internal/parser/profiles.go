package parser

import (
	"regexp"
	"strings"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// amountExpr matches a printed money value with two decimals and any sign
// notation we know how to read.
const amountExpr = `[-+(]?[£$€]?\d{1,3}(?:[,.]?\d{3})*[.,]\d{2}\)?(?:\s?(?:CR|DR))?-?`

var amountToken = regexp.MustCompile(`(?:^|\s)` + amountExpr + `(?:\s|$)`)

// tailAmounts completes a multi-line entry: the final line carries the
// amount and optionally the running balance.
var tailAmounts = regexp.MustCompile(`^(?P<desc>.*?)\s*(?P<amount>` + amountExpr + `)(?:\s+(?P<balance>` + amountExpr + `))?$`)

// Profile describes one bank's statement layout.
type Profile struct {
	Name string
	// Aliases match the bank name supplied with the upload.
	Aliases []string
	// Markers identify the bank from statement text.
	Markers []string
	// Rows are tried in order. Named groups: date, type, desc, amount, balance.
	Rows []*regexp.Regexp
	// CarryDate lets rows without a date inherit the previous row's date.
	CarryDate  bool
	MonthFirst bool
	// TypeDirections maps printed payment type codes to a direction.
	TypeDirections map[string]domain.Direction
}

func row(expr string) *regexp.Regexp {
	expr = strings.NewReplacer(
		"AMT", amountExpr,
		"SHORTDATE", shortDateExpr,
		"TEXTDATE", textDateExpr,
		"NUMDATE", numDateExpr,
		"ISODATE", isoDateExpr,
		"SHORTNUM", shortNumExpr,
		"USDATE", shortUSDateExpr,
	).Replace(expr)
	return regexp.MustCompile(`(?i)` + expr)
}

// GenericProfile names the fallback layout used when no bank is recognised.
const GenericProfile = "generic"

var genericProfile = &Profile{
	Name: GenericProfile,
	Rows: []*regexp.Regexp{
		row(`^(?P<date>ISODATE|NUMDATE|TEXTDATE)\s+(?P<desc>.+?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
		row(`^(?P<date>SHORTDATE|SHORTNUM|USDATE)\s+(?P<desc>.+?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
	},
}

var barclaysProfile = &Profile{
	Name:    "barclays",
	Aliases: []string{"barclays"},
	Markers: []string{"barclays bank", "barclays.co.uk", "barclays"},
	Rows: []*regexp.Regexp{
		row(`^(?P<date>TEXTDATE|NUMDATE|SHORTDATE)\s+(?P<desc>.+?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
		row(`^(?P<desc>[a-z].*?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
	},
	CarryDate: true,
}

var hsbcProfile = &Profile{
	Name:    "hsbc",
	Aliases: []string{"hsbc"},
	Markers: []string{"hsbc uk bank", "hsbc.co.uk", "hsbc"},
	Rows: []*regexp.Regexp{
		row(`^(?:(?P<date>TEXTDATE|SHORTDATE)\s+)?(?P<type>VIS|DD|SO|CR|BP|ATM|TFR|DR|CHQ|OBP|\)\)\))\s+(?P<desc>.+?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
	},
	CarryDate: true,
	TypeDirections: map[string]domain.Direction{
		"VIS": domain.DirectionDebit,
		"DD":  domain.DirectionDebit,
		"SO":  domain.DirectionDebit,
		"BP":  domain.DirectionDebit,
		"ATM": domain.DirectionDebit,
		"DR":  domain.DirectionDebit,
		"CHQ": domain.DirectionDebit,
		"OBP": domain.DirectionDebit,
		")))": domain.DirectionDebit,
		"CR":  domain.DirectionCredit,
	},
}

var metroProfile = &Profile{
	Name:    "metro",
	Aliases: []string{"metro bank", "metro"},
	Markers: []string{"metro bank", "metrobankonline"},
	Rows: []*regexp.Regexp{
		row(`^(?P<date>NUMDATE|TEXTDATE)\s+(?P<type>Card Payment|Faster Payment|Direct Debit|Standing Order|Inward Payment|Outward Payment|Transfer|Cash Withdrawal|Refund)\s+(?P<desc>.+?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
	},
	TypeDirections: map[string]domain.Direction{
		"card payment":    domain.DirectionDebit,
		"direct debit":    domain.DirectionDebit,
		"standing order":  domain.DirectionDebit,
		"outward payment": domain.DirectionDebit,
		"cash withdrawal": domain.DirectionDebit,
		"inward payment":  domain.DirectionCredit,
		"refund":          domain.DirectionCredit,
	},
}

var lloydsProfile = &Profile{
	Name:    "lloyds",
	Aliases: []string{"lloyds"},
	Markers: []string{"lloyds bank", "lloydsbank.com"},
	Rows: []*regexp.Regexp{
		row(`^(?P<date>TEXTDATE|NUMDATE)\s+(?P<desc>.+?)\s+(?P<type>DEB|FPI|FPO|DD|SO|BGC|CHQ|PAY|CPT|TFR|BP|COR)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
	},
	TypeDirections: map[string]domain.Direction{
		"DEB": domain.DirectionDebit,
		"FPO": domain.DirectionDebit,
		"DD":  domain.DirectionDebit,
		"SO":  domain.DirectionDebit,
		"CHQ": domain.DirectionDebit,
		"PAY": domain.DirectionDebit,
		"CPT": domain.DirectionDebit,
		"BP":  domain.DirectionDebit,
		"FPI": domain.DirectionCredit,
		"BGC": domain.DirectionCredit,
		"COR": domain.DirectionCredit,
	},
}

var chaseProfile = &Profile{
	Name:    "chase",
	Aliases: []string{"chase", "jpmorgan chase"},
	Markers: []string{"jpmorgan chase", "chase.com"},
	Rows: []*regexp.Regexp{
		row(`^(?P<date>SHORTNUM|NUMDATE)\s+(?P<desc>.+?)\s+(?P<amount>AMT)(?:\s+(?P<balance>AMT))?$`),
	},
	MonthFirst: true,
}

// Profiles returns the bank-specific layouts, most specific first.
func Profiles() []*Profile {
	return []*Profile{barclaysProfile, hsbcProfile, metroProfile, lloydsProfile, chaseProfile}
}

// profileForHint matches the bank name supplied with the upload.
func profileForHint(bank string) *Profile {
	b := strings.ToLower(strings.TrimSpace(bank))
	if b == "" {
		return nil
	}
	for _, p := range Profiles() {
		for _, a := range p.Aliases {
			if strings.Contains(b, a) {
				return p
			}
		}
	}
	return nil
}

// detectProfile identifies the bank from statement text.
func detectProfile(text string) *Profile {
	lower := strings.ToLower(text)
	for _, p := range Profiles() {
		for _, m := range p.Markers {
			if strings.Contains(lower, m) {
				return p
			}
		}
	}
	return nil
}

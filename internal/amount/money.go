package amount

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for tokens that are not a monetary value.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	commaDecimalPattern = regexp.MustCompile(`,\d{2}$`)
	numericPattern      = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)$`)

	currencyCodes   = []string{"GBP", "USD", "EUR", "CHF", "JPY", "CAD", "AUD", "US$"}
	currencySymbols = []string{"£", "$", "€", "¥", "₹", "₣"}

	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// exponents lists currencies whose minor unit is not a hundredth.
var exponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"JOD": 3,
	"TND": 3,
}

// Exponent returns the number of minor-unit digits for an ISO currency code.
func Exponent(currency string) int32 {
	if e, ok := exponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// ParseMinor converts a printed amount in a two-decimal currency into signed
// minor units. See ParseMinorUnits.
func ParseMinor(token string) (int64, error) {
	return ParseMinorUnits(token, 2)
}

// ParseMinorUnits converts a printed amount such as "£1,234.56", "(12.00)",
// "45.10-", "1.234,56" or "99.00 DR" into signed minor units with the given
// exponent.
//
// "." is the decimal separator unless the token ends in "," followed by
// exactly two digits, in which case "," is decimal and "." is a thousands
// separator. Values are rounded half away from zero to the minor unit.
func ParseMinorUnits(token string, exponent int32) (int64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(token, " ", " "))
	if s == "" {
		return 0, fmt.Errorf("ParseMinorUnits: empty token: %w", ErrInvalidAmount)
	}

	negative := false

	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = !negative
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = stripCurrency(s)

	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"):
		negative = !negative
		s = strings.TrimLeft(s, "-−")
	case strings.HasSuffix(s, "-"):
		negative = !negative
		s = strings.TrimRight(s, "-")
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	// Currency may sit after the sign ("-£12.00").
	s = stripCurrency(s)

	s = strings.NewReplacer(" ", "", "'", "", " ", "").Replace(s)

	if commaDecimalPattern.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	if !numericPattern.MatchString(s) {
		return 0, fmt.Errorf("ParseMinorUnits: %q: %w", token, ErrInvalidAmount)
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("ParseMinorUnits: %q: %w", token, ErrInvalidAmount)
	}
	d = d.Shift(exponent).Round(0)
	if d.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("ParseMinorUnits: %q overflows: %w", token, ErrInvalidAmount)
	}

	v := d.IntPart()
	if negative {
		v = -v
	}
	return v, nil
}

// Format renders minor units as a plain decimal string ("-1234.56").
func Format(minor int64, exponent int32) string {
	return decimal.New(minor, -exponent).StringFixed(exponent)
}

func stripCurrency(s string) string {
	s = strings.TrimSpace(s)
	for _, sym := range currencySymbols {
		s = strings.TrimPrefix(s, sym)
		s = strings.TrimSuffix(s, sym)
	}
	upper := strings.ToUpper(s)
	for _, code := range currencyCodes {
		if strings.HasPrefix(upper, code) {
			s = s[len(code):]
			upper = upper[len(code):]
		}
		if strings.HasSuffix(upper, code) {
			s = s[:len(s)-len(code)]
			upper = upper[:len(upper)-len(code)]
		}
	}
	return strings.TrimSpace(s)
}

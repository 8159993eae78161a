package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	monthAlt = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?`

	isoDateExpr     = `\d{4}-\d{2}-\d{2}`
	numDateExpr     = `\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}`
	textDateExpr    = `\d{1,2}(?:st|nd|rd|th)?[ -]` + monthAlt + `[ -]\d{2,4}`
	usTextDateExpr  = monthAlt + ` \d{1,2},? \d{4}`
	shortDateExpr   = `\d{1,2}(?:st|nd|rd|th)?[ -]` + monthAlt
	shortUSDateExpr = monthAlt + ` \d{1,2}`
	shortNumExpr    = `\d{1,2}/\d{1,2}`

	// anyDateExpr lists full forms before short ones so alternation prefers
	// the longest match.
	anyDateExpr = isoDateExpr + `|` + numDateExpr + `|` + textDateExpr + `|` + usTextDateExpr +
		`|` + shortDateExpr + `|` + shortUSDateExpr + `|` + shortNumExpr
)

var (
	dateAtStart = regexp.MustCompile(`(?i)^(?:` + anyDateExpr + `)(?:\s|$)`)

	numDateParts  = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})(?:[/.-](\d{2,4}))?$`)
	textDateParts = regexp.MustCompile(`(?i)^(\d{1,2})(?:st|nd|rd|th)?[ -]([a-z]+)\.?(?:[ -](\d{2,4}))?$`)
	usDateParts   = regexp.MustCompile(`(?i)^([a-z]+)\.? (\d{1,2}),?(?: (\d{4}))?$`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// dateContext supplies what a bare "3 Mar" or "03/04" cannot say itself.
type dateContext struct {
	year       int
	lastMonth  time.Month // month the statement ends in; 0 if unknown
	monthFirst bool
}

// startsWithDate reports whether the line opens with any recognised date.
func startsWithDate(line string) bool {
	return dateAtStart.MatchString(line)
}

// parseDate converts a date token into a UTC date.
func parseDate(tok string, dc dateContext) (time.Time, bool) {
	tok = strings.TrimSpace(tok)

	if t, err := time.Parse("2006-01-02", tok); err == nil {
		return t, true
	}

	if m := numDateParts.FindStringSubmatch(tok); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		day, month := a, b
		if dc.monthFirst {
			day, month = b, a
		}
		// A first field above twelve can only be a day.
		if month > 12 && day <= 12 {
			day, month = month, day
		}
		return build(day, time.Month(month), m[3], dc)
	}

	if m := textDateParts.FindStringSubmatch(tok); m != nil {
		mon, ok := monthFromName(m[2])
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[1])
		return build(day, mon, m[3], dc)
	}

	if m := usDateParts.FindStringSubmatch(tok); m != nil {
		mon, ok := monthFromName(m[1])
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[2])
		return build(day, mon, m[3], dc)
	}

	return time.Time{}, false
}

func monthFromName(name string) (time.Month, bool) {
	if len(name) < 3 {
		return 0, false
	}
	m, ok := months[strings.ToLower(name[:3])]
	return m, ok
}

func build(day int, month time.Month, yearText string, dc dateContext) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var year int
	switch {
	case yearText == "":
		year = dc.year
		// Statements spanning new year print December lines in a January
		// statement without a year.
		if dc.lastMonth != 0 && month > dc.lastMonth {
			year--
		}
	case len(yearText) == 2:
		y, _ := strconv.Atoi(yearText)
		year = 2000 + y
	default:
		year, _ = strconv.Atoi(yearText)
	}
	if year <= 0 {
		return time.Time{}, false
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

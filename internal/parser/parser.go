// Package parser turns raw statement text into a header and an ordered list
// of transaction candidates.
package parser

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/amount"
	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// ErrEmptyText is returned when there is nothing to parse.
var ErrEmptyText = errors.New("parser: empty text")

// maxContinuationLines bounds how many wrapped lines may be merged into one
// description, so footers after the last row are not swallowed.
const maxContinuationLines = 3

// Hints carries what the upload already knows about the statement.
type Hints struct {
	BankName   string
	AccountRef string
	Currency   string
	Year       int
	Month      int
}

// Parsed is the result of one Parse call.
type Parsed struct {
	Header     Header             `json:"header"`
	Candidates []domain.Candidate `json:"candidates"`
	// LowConfidence is set when non-empty text produced no candidates.
	LowConfidence bool   `json:"low_confidence"`
	Profile       string `json:"profile"`
}

var (
	dateToken = regexp.MustCompile(`(?i)^(` + anyDateExpr + `)(?:\s+|$)`)
	anyAmount = regexp.MustCompile(amountExpr)

	summaryLine = regexp.MustCompile(`(?i)\b(?:(?:opening|closing|start|end|previous|new)\s+balance|balance\s+(?:brought|carried)\s+forward|(?:brought|carried)\s+forward)\b`)

	noiseLine = regexp.MustCompile(`(?i)^(?:page\s+\d+(?:\s+of\s+\d+)?$|date\s+(?:description|details|payment|transaction)|continued\b|sort\s+code|account\s+(?:number|name|no)|statement\s+(?:date|period|of)|your\s+.*statement|(?:money|paid)\s+(?:out|in)\b|balance$|total\s+(?:payments|receipts|paid|money|debits|credits|in|out)\b|.*\b(?:authorised by|registered (?:in|office|number)|financial conduct|prudential regulation|www\.|https?://))`)

	creditWords = []string{"salary", "refund", "received from", "transfer from", "interest paid", "credit interest", "deposit", "paid in", "payment received", "bank giro credit"}
	debitWords  = []string{"card payment", "direct debit", "standing order", "withdrawal", "transfer to", "bill payment", "purchase", "atm", "fee", "charge"}
)

// Parser is safe for concurrent use.
type Parser struct {
	now func() time.Time
}

// New returns a Parser using the wall clock for year fallback.
func New() *Parser {
	return &Parser{now: time.Now}
}

// Parse classifies every line of rawText as header, transaction,
// continuation or noise. Candidates keep document order.
func (p *Parser) Parse(rawText string, hints Hints) (*Parsed, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyText
	}

	profile := profileForHint(hints.BankName)
	if profile == nil {
		profile = detectProfile(rawText)
	}
	if profile == nil {
		profile = genericProfile
	}
	monthFirst := profile.MonthFirst || strings.EqualFold(hints.Currency, "USD")

	header := parseHeader(rawText, monthFirst)

	dc := dateContext{monthFirst: monthFirst}
	switch {
	case hints.Year > 0:
		dc.year = hints.Year
	case header.PeriodEnd != nil:
		dc.year = header.PeriodEnd.Year()
	default:
		dc.year = p.now().Year()
	}
	switch {
	case hints.Month >= 1 && hints.Month <= 12:
		dc.lastMonth = time.Month(hints.Month)
	case header.PeriodEnd != nil:
		dc.lastMonth = header.PeriodEnd.Month()
	}

	s := &scanState{
		profile: profile,
		rows:    rowsFor(profile),
		dc:      dc,
	}
	if header.OpeningBalance != "" {
		if v, err := amount.ParseMinor(header.OpeningBalance); err == nil {
			s.setRunning(v)
		}
	}

	lineNo := 0
	for pageIdx, page := range splitPages(rawText) {
		s.prev = -1
		s.pending = nil
		for _, raw := range strings.Split(page, "\n") {
			lineNo++
			line := cleanLine(raw)
			if line == "" {
				continue
			}
			s.scan(line, raw, lineNo, pageIdx+1)
		}
	}

	return &Parsed{
		Header:        header,
		Candidates:    s.out,
		LowConfidence: len(s.out) == 0,
		Profile:       profile.Name,
	}, nil
}

// rowsFor puts the bank's own rows ahead of the generic ones so the declared
// bank wins when both match.
func rowsFor(p *Profile) []profileRow {
	var rows []profileRow
	for _, re := range p.Rows {
		rows = append(rows, profileRow{re: re, profile: p})
	}
	if p != genericProfile {
		for _, re := range genericProfile.Rows {
			rows = append(rows, profileRow{re: re, profile: genericProfile})
		}
	}
	return rows
}

type profileRow struct {
	re      *regexp.Regexp
	profile *Profile
}

// pendingEntry is a dated line whose amount arrives on a later line.
type pendingEntry struct {
	date     time.Time
	dateText string
	typ      string
	desc     []string
	line     int
	raw      []string
}

type scanState struct {
	profile *Profile
	rows    []profileRow
	dc      dateContext

	out []domain.Candidate
	// prev indexes the candidate a wrapped line may extend; -1 for none.
	prev      int
	contLines int
	pending   *pendingEntry

	lastDate     time.Time
	lastDateText string

	running    int64
	hasRunning bool
}

func (s *scanState) setRunning(v int64) {
	s.running = v
	s.hasRunning = true
}

func (s *scanState) scan(line, raw string, lineNo, page int) {
	if noiseLine.MatchString(line) {
		s.prev = -1
		s.pending = nil
		return
	}

	if summaryLine.MatchString(line) {
		if all := anyAmount.FindAllString(line, -1); len(all) > 0 {
			if v, err := amount.ParseMinor(all[len(all)-1]); err == nil {
				s.setRunning(v)
			}
		}
		s.prev = -1
		s.pending = nil
		return
	}

	hasDate := startsWithDate(line)
	hasAmount := amountToken.MatchString(line)

	if s.pending != nil && !hasDate {
		if !hasAmount {
			if len(s.pending.desc) < maxContinuationLines+1 {
				s.pending.desc = append(s.pending.desc, line)
				s.pending.raw = append(s.pending.raw, raw)
			} else {
				s.pending = nil
			}
			return
		}
		if m := tailAmounts.FindStringSubmatch(line); m != nil {
			pe := s.pending
			s.pending = nil
			desc := strings.Join(append(pe.desc, group(tailAmounts, m, "desc")), " ")
			s.emit(domain.Candidate{
				Line:     pe.line,
				Page:     page,
				Date:     pe.date,
				DateText: pe.dateText,
				RawLine:  strings.Join(append(pe.raw, raw), "\n"),
			}, pe.typ, strings.TrimSpace(desc), group(tailAmounts, m, "amount"), group(tailAmounts, m, "balance"))
			return
		}
	}
	s.pending = nil

	if hasAmount && s.matchRow(line, raw, lineNo, page) {
		return
	}

	if hasDate && !hasAmount {
		s.startPending(line, raw, lineNo)
		return
	}
	if !hasAmount && s.profile.CarryDate && !s.lastDate.IsZero() && s.startsWithType(line) {
		s.pending = &pendingEntry{
			date:     s.lastDate,
			dateText: s.lastDateText,
			typ:      firstWord(line),
			desc:     []string{strings.TrimSpace(strings.TrimPrefix(line, firstWord(line)))},
			line:     lineNo,
			raw:      []string{raw},
		}
		s.prev = -1
		return
	}

	if !hasDate && !hasAmount && s.prev >= 0 && s.contLines < maxContinuationLines {
		c := &s.out[s.prev]
		c.Description = c.Description + " " + line
		c.RawLine = c.RawLine + "\n" + raw
		s.contLines++
		return
	}

	s.prev = -1
}

func (s *scanState) matchRow(line, raw string, lineNo, page int) bool {
	for _, r := range s.rows {
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(group(r.re, m, "desc"))
		if desc == "" {
			continue
		}

		dateText := group(r.re, m, "date")
		var date time.Time
		if dateText != "" {
			d, ok := parseDate(dateText, s.dc)
			if !ok {
				continue
			}
			date = d
			s.lastDate, s.lastDateText = d, dateText
		} else {
			if !r.profile.CarryDate || s.lastDate.IsZero() {
				continue
			}
			date, dateText = s.lastDate, s.lastDateText
		}

		s.emit(domain.Candidate{
			Line:     lineNo,
			Page:     page,
			Date:     date,
			DateText: dateText,
			RawLine:  raw,
		}, group(r.re, m, "type"), desc, group(r.re, m, "amount"), group(r.re, m, "balance"))
		return true
	}
	return false
}

func (s *scanState) startPending(line, raw string, lineNo int) {
	m := dateToken.FindStringSubmatch(line)
	if m == nil {
		return
	}
	d, ok := parseDate(m[1], s.dc)
	if !ok {
		return
	}
	s.lastDate, s.lastDateText = d, m[1]

	rest := strings.TrimSpace(line[len(m[0]):])
	pe := &pendingEntry{date: d, dateText: m[1], line: lineNo, raw: []string{raw}}
	if s.startsWithType(rest) {
		pe.typ = firstWord(rest)
		rest = strings.TrimSpace(strings.TrimPrefix(rest, pe.typ))
	}
	if rest != "" {
		pe.desc = []string{rest}
	}
	s.pending = pe
	s.prev = -1
}

func (s *scanState) startsWithType(line string) bool {
	if len(s.profile.TypeDirections) == 0 {
		return false
	}
	_, ok := s.profile.TypeDirections[firstWord(line)]
	return ok
}

func (s *scanState) emit(c domain.Candidate, typ, desc, amountText, balanceText string) {
	c.Sequence = len(s.out)
	c.Description = desc
	c.AmountText = strings.TrimSpace(amountText)
	c.BalanceText = strings.TrimSpace(balanceText)
	c.Direction = s.direction(typ, desc, c.AmountText, c.BalanceText)

	s.out = append(s.out, c)
	s.prev = len(s.out) - 1
	s.contLines = 0
}

// direction resolves debit or credit from, in order: the sign printed with
// the amount, the payment type code, the running balance, keywords.
func (s *scanState) direction(typ, desc, amountText, balanceText string) domain.Direction {
	dir := signDirection(amountText)
	if dir == "" && typ != "" {
		dir = s.profile.typeDirection(typ)
	}

	mag, errAmt := amount.ParseMinor(amountText)
	if mag < 0 {
		mag = -mag
	}

	if balanceText != "" {
		if bal, err := amount.ParseMinor(balanceText); err == nil {
			if dir == "" && s.hasRunning && errAmt == nil {
				switch delta := bal - s.running; {
				case delta == -mag, delta < 0:
					dir = domain.DirectionDebit
				case delta == mag, delta > 0:
					dir = domain.DirectionCredit
				}
			}
			s.setRunning(bal)
		}
	}

	if dir == "" {
		dir = keywordDirection(desc)
	}
	if dir == "" {
		dir = domain.DirectionDebit
	}

	if balanceText == "" && s.hasRunning && errAmt == nil {
		if dir == domain.DirectionDebit {
			s.running -= mag
		} else {
			s.running += mag
		}
	}
	return dir
}

func (p *Profile) typeDirection(typ string) domain.Direction {
	if d, ok := p.TypeDirections[typ]; ok {
		return d
	}
	if d, ok := p.TypeDirections[strings.ToUpper(typ)]; ok {
		return d
	}
	return p.TypeDirections[strings.ToLower(typ)]
}

func signDirection(tok string) domain.Direction {
	t := strings.ToUpper(strings.TrimSpace(tok))
	switch {
	case t == "":
		return ""
	case strings.HasSuffix(t, "DR"):
		return domain.DirectionDebit
	case strings.HasSuffix(t, "CR"):
		return domain.DirectionCredit
	case strings.HasPrefix(t, "-"), strings.HasPrefix(t, "("), strings.HasSuffix(t, "-"):
		return domain.DirectionDebit
	case strings.HasPrefix(t, "+"):
		return domain.DirectionCredit
	}
	return ""
}

func keywordDirection(desc string) domain.Direction {
	d := strings.ToLower(desc)
	for _, w := range creditWords {
		if strings.Contains(d, w) {
			return domain.DirectionCredit
		}
	}
	for _, w := range debitWords {
		if strings.Contains(d, w) {
			return domain.DirectionDebit
		}
	}
	return ""
}

func group(re *regexp.Regexp, m []string, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || i >= len(m) {
		return ""
	}
	return m[i]
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

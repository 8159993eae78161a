package amount

import (
	"fmt"
	"math"
	"sort"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// Correction modes.
const (
	ModeFlag        = "flag"
	ModeAutoCorrect = "auto_correct"
)

// Policy holds the scale-error thresholds. Ceiling and ReviewThreshold are in
// major currency units.
type Policy struct {
	// Ceiling flags any magnitude above it.
	Ceiling int64
	// ReviewThreshold only attaches a warning.
	ReviewThreshold int64
	// MedianRatio flags magnitudes more than this many times the median of
	// the other lines on the statement.
	MedianRatio int64
	// TargetRatio bounds the corrected value against that same median.
	TargetRatio int64
	Mode        string
}

// DefaultPolicy returns the thresholds used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Ceiling:         1_000_000,
		ReviewThreshold: 100_000,
		MedianRatio:     1000,
		TargetRatio:     10,
		Mode:            ModeFlag,
	}
}

// StatementContext carries per-statement values that every line shares.
type StatementContext struct {
	StatementID string
	Currency    string
}

// Normalizer converts parser candidates into transactions, flagging values
// that look like OCR scale errors.
type Normalizer struct {
	policy Policy
}

// NewNormalizer creates a Normalizer. Non-positive thresholds take defaults.
func NewNormalizer(p Policy) *Normalizer {
	d := DefaultPolicy()
	if p.Ceiling <= 0 {
		p.Ceiling = d.Ceiling
	}
	if p.MedianRatio <= 0 {
		p.MedianRatio = d.MedianRatio
	}
	if p.TargetRatio <= 0 {
		p.TargetRatio = d.TargetRatio
	}
	if p.Mode == "" {
		p.Mode = d.Mode
	}
	return &Normalizer{policy: p}
}

// Policy returns the effective thresholds.
func (n *Normalizer) Policy() Policy {
	return n.policy
}

// NormalizeAll converts every candidate, keeping document order.
// Candidates whose amount cannot be read are dropped with a warning.
// The returned warnings are statement-level.
func (n *Normalizer) NormalizeAll(sc StatementContext, candidates []domain.Candidate) ([]domain.Transaction, []string) {
	exp := Exponent(sc.Currency)

	var warnings []string
	txs := make([]domain.Transaction, 0, len(candidates))
	lines := make([]int, 0, len(candidates))
	for _, c := range candidates {
		tx, err := toTransaction(sc, c, exp)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", c.Line, err))
			continue
		}
		txs = append(txs, tx)
		lines = append(lines, c.Line)
	}

	mags := make([]int64, len(txs))
	for i := range txs {
		mags[i] = abs(txs[i].OriginalAmount)
	}
	sorted := append([]int64(nil), mags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i := range txs {
		median := medianExcluding(sorted, mags[i])
		n.apply(&txs[i], median, exp)
		if txs[i].Flagged {
			warnings = append(warnings, fmt.Sprintf("line %d: amount %s flagged as possible scale error",
				lines[i], Format(txs[i].OriginalAmount, exp)))
		}
	}

	for i := range txs {
		txs[i].Sequence = i
	}
	return txs, warnings
}

// Normalize converts a single candidate against an externally computed
// median of the other lines (in minor units).
func (n *Normalizer) Normalize(sc StatementContext, c domain.Candidate, median int64) (domain.Transaction, error) {
	exp := Exponent(sc.Currency)
	tx, err := toTransaction(sc, c, exp)
	if err != nil {
		return domain.Transaction{}, err
	}
	n.apply(&tx, median, exp)
	return tx, nil
}

func toTransaction(sc StatementContext, c domain.Candidate, exp int32) (domain.Transaction, error) {
	v, err := ParseMinorUnits(c.AmountText, exp)
	if err != nil {
		return domain.Transaction{}, err
	}

	dir := c.Direction
	if dir == "" {
		if v < 0 {
			dir = domain.DirectionDebit
		} else {
			dir = domain.DirectionCredit
		}
	}
	signed := abs(v)
	if dir == domain.DirectionDebit {
		signed = -signed
	}

	tx := domain.Transaction{
		StatementID:    sc.StatementID,
		Sequence:       c.Sequence,
		Date:           c.Date,
		Description:    c.Description,
		Amount:         signed,
		OriginalAmount: signed,
		Currency:       sc.Currency,
		Direction:      dir,
		Category:       c.Category,
		RawLine:        c.RawLine,
	}

	if c.BalanceText != "" {
		if b, err := ParseMinorUnits(c.BalanceText, exp); err == nil {
			tx.BalanceAfter = &b
		} else {
			tx.Warnings = append(tx.Warnings, "unreadable balance "+c.BalanceText)
		}
	}
	return tx, nil
}

func (n *Normalizer) apply(tx *domain.Transaction, median int64, exp int32) {
	scale := pow10(exp)
	ceiling := mulCap(n.policy.Ceiling, scale)
	mag := abs(tx.OriginalAmount)

	if n.policy.ReviewThreshold > 0 && mag > mulCap(n.policy.ReviewThreshold, scale) && mag <= ceiling {
		tx.Warnings = append(tx.Warnings, "amount above review threshold")
	}

	overCeiling := mag > ceiling
	overMedian := median > 0 && mag > mulCap(median, n.policy.MedianRatio)
	if !overCeiling && !overMedian {
		return
	}

	tx.Flagged = true
	if overCeiling {
		tx.Warnings = append(tx.Warnings, "amount above absolute ceiling")
	}
	if overMedian {
		tx.Warnings = append(tx.Warnings, fmt.Sprintf("amount more than %dx statement median", n.policy.MedianRatio))
	}

	corrected, ok := n.correct(mag, median, ceiling)
	if !ok {
		tx.Warnings = append(tx.Warnings, "no scale correction found")
		return
	}
	if tx.OriginalAmount < 0 {
		corrected = -corrected
	}
	tx.CorrectedAmount = &corrected
	if n.policy.Mode == ModeAutoCorrect {
		tx.Amount = corrected
	}
}

// correct drops trailing zero digits one decade at a time until the value is
// within the ceiling and within TargetRatio of the median.
func (n *Normalizer) correct(mag, median, ceiling int64) (int64, bool) {
	within := func(v int64) bool {
		if v > ceiling {
			return false
		}
		return median <= 0 || v <= mulCap(median, n.policy.TargetRatio)
	}

	c := mag
	for c > 0 && c%10 == 0 && !within(c) {
		c /= 10
	}
	if c == mag || !within(c) {
		return 0, false
	}
	return c, true
}

// medianExcluding returns the median of sorted with one occurrence of v
// removed.
func medianExcluding(sorted []int64, v int64) int64 {
	m := len(sorted) - 1
	if m <= 0 {
		return 0
	}
	k := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= v })
	at := func(p int) int64 {
		if p < k {
			return sorted[p]
		}
		return sorted[p+1]
	}
	if m%2 == 1 {
		return at(m / 2)
	}
	return (at(m/2-1) + at(m/2)) / 2
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func pow10(exp int32) int64 {
	p := int64(1)
	for i := int32(0); i < exp; i++ {
		p *= 10
	}
	return p
}

// mulCap multiplies two non-negative values, saturating at MaxInt64.
func mulCap(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

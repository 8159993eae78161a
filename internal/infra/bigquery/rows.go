package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

type StatementRow struct {
	StatementID string `bigquery:"statement_id"` // REQUIRED

	AccountRef     string             `bigquery:"account_ref"`     // NULLABLE
	BankName       string             `bigquery:"bank_name"`       // NULLABLE
	Currency       string             `bigquery:"currency"`        // REQUIRED
	StatementMonth bigquery.NullInt64 `bigquery:"statement_month"` // NULLABLE
	StatementYear  bigquery.NullInt64 `bigquery:"statement_year"`  // NULLABLE

	PeriodStart bigquery.NullDate `bigquery:"period_start"` // NULLABLE
	PeriodEnd   bigquery.NullDate `bigquery:"period_end"`   // NULLABLE

	SourcePath     string `bigquery:"source_path"`      // REQUIRED
	SourceMimeType string `bigquery:"source_mime_type"` // REQUIRED
	SourceFilename string `bigquery:"source_filename"`  // NULLABLE
	ChecksumSHA256 string `bigquery:"checksum_sha256"`  // NULLABLE

	Status             string   `bigquery:"status"`              // REQUIRED
	ProcessingErrors   []string `bigquery:"processing_errors"`   // REPEATED
	ProcessingWarnings []string `bigquery:"processing_warnings"` // REPEATED

	ActiveRunID      string `bigquery:"active_run_id"`     // NULLABLE
	ExtractionMethod string `bigquery:"extraction_method"` // NULLABLE
	LowConfidence    bool   `bigquery:"low_confidence"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// TransactionRow keeps amounts in minor units. Rows are bound to the run that
// produced them; only the statement's active run is live.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	StatementID   string `bigquery:"statement_id"`   // REQUIRED
	RunID         string `bigquery:"run_id"`         // REQUIRED
	Sequence      int64  `bigquery:"sequence"`       // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Description     string     `bigquery:"description"`      // REQUIRED

	AmountMinor int64               `bigquery:"amount_minor"` // REQUIRED
	Currency    string              `bigquery:"currency"`     // REQUIRED
	Direction   string              `bigquery:"direction"`    // REQUIRED
	Category    bigquery.NullString `bigquery:"category"`     // NULLABLE

	BalanceAfterMinor bigquery.NullInt64 `bigquery:"balance_after_minor"` // NULLABLE

	OriginalAmountMinor  int64              `bigquery:"original_amount_minor"`  // REQUIRED
	CorrectedAmountMinor bigquery.NullInt64 `bigquery:"corrected_amount_minor"` // NULLABLE
	Flagged              bool               `bigquery:"flagged"`
	Warnings             []string           `bigquery:"warnings"` // REPEATED

	RawLine   string    `bigquery:"raw_line"`   // NULLABLE
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type ParsingRunRow struct {
	ParsingRunID string `bigquery:"parsing_run_id"` // REQUIRED
	StatementID  string `bigquery:"statement_id"`   // REQUIRED

	StartedTS  time.Time `bigquery:"started_ts"`  // REQUIRED
	FinishedTS time.Time `bigquery:"finished_ts"` // REQUIRED

	Provider     string `bigquery:"provider"`      // NULLABLE
	Status       string `bigquery:"status"`        // REQUIRED
	ErrorMessage string `bigquery:"error_message"` // NULLABLE
}

type ModelOutputRow struct {
	OutputID     string `bigquery:"output_id"`      // REQUIRED
	ParsingRunID string `bigquery:"parsing_run_id"` // REQUIRED
	StatementID  string `bigquery:"statement_id"`   // REQUIRED

	Kind          string              `bigquery:"kind"`           // REQUIRED
	RawJSON       bigquery.NullJSON   `bigquery:"raw_json"`       // NULLABLE
	ExtractedText bigquery.NullString `bigquery:"extracted_text"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type NotificationRow struct {
	NotificationID   string   `bigquery:"notification_id"` // REQUIRED
	StatementID      string   `bigquery:"statement_id"`    // REQUIRED
	Status           string   `bigquery:"status"`          // REQUIRED
	TransactionCount int64    `bigquery:"transaction_count"`
	FlaggedCount     int64    `bigquery:"flagged_count"`
	Errors           []string `bigquery:"errors"` // REPEATED

	CreatedTS   time.Time              `bigquery:"created_ts"`   // REQUIRED
	DeliveredTS bigquery.NullTimestamp `bigquery:"delivered_ts"` // NULLABLE
}

func nullDate(t *time.Time) bigquery.NullDate {
	if t == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(*t), Valid: true}
}

func datePtr(d bigquery.NullDate) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Date.In(time.UTC)
	return &t
}

func nullInt(v int) bigquery.NullInt64 {
	if v == 0 {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: int64(v), Valid: true}
}

func nullInt64Ptr(v *int64) bigquery.NullInt64 {
	if v == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v bigquery.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// statementToRow maps a statement onto the statements table. BigQuery
// REPEATED columns cannot hold NULL, so nil slices become empty.
func statementToRow(s *domain.Statement) *StatementRow {
	return &StatementRow{
		StatementID:        s.ID,
		AccountRef:         s.AccountRef,
		BankName:           s.BankName,
		Currency:           s.Currency,
		StatementMonth:     nullInt(s.StatementMonth),
		StatementYear:      nullInt(s.StatementYear),
		PeriodStart:        nullDate(s.PeriodStart),
		PeriodEnd:          nullDate(s.PeriodEnd),
		SourcePath:         s.Source.Path,
		SourceMimeType:     s.Source.MimeType,
		SourceFilename:     s.Source.Filename,
		ChecksumSHA256:     s.Source.ChecksumSHA256,
		Status:             string(s.Status),
		ProcessingErrors:   nonNil(s.ProcessingErrors),
		ProcessingWarnings: nonNil(s.ProcessingWarnings),
		ActiveRunID:        s.ActiveRunID,
		ExtractionMethod:   s.ExtractionMethod,
		LowConfidence:      s.LowConfidence,
		CreatedTS:          s.CreatedAt,
		UpdatedTS:          s.UpdatedAt,
	}
}

func (r *StatementRow) toDomain() *domain.Statement {
	s := &domain.Statement{
		ID:             r.StatementID,
		AccountRef:     r.AccountRef,
		BankName:       r.BankName,
		Currency:       r.Currency,
		StatementMonth: int(r.StatementMonth.Int64),
		StatementYear:  int(r.StatementYear.Int64),
		PeriodStart:    datePtr(r.PeriodStart),
		PeriodEnd:      datePtr(r.PeriodEnd),
		Source: domain.SourceDocument{
			Path:           r.SourcePath,
			MimeType:       r.SourceMimeType,
			Filename:       r.SourceFilename,
			ChecksumSHA256: r.ChecksumSHA256,
		},
		Status:           domain.StatementStatus(r.Status),
		ProcessingErrors: nonNil(r.ProcessingErrors),
		ActiveRunID:      r.ActiveRunID,
		ExtractionMethod: r.ExtractionMethod,
		LowConfidence:    r.LowConfidence,
		CreatedAt:        r.CreatedTS,
		UpdatedAt:        r.UpdatedTS,
	}
	if len(r.ProcessingWarnings) > 0 {
		s.ProcessingWarnings = r.ProcessingWarnings
	}
	return s
}

func transactionToRow(tx domain.Transaction, created time.Time) TransactionRow {
	row := TransactionRow{
		TransactionID:        tx.ID,
		StatementID:          tx.StatementID,
		RunID:                tx.RunID,
		Sequence:             int64(tx.Sequence),
		TransactionDate:      civil.DateOf(tx.Date),
		Description:          tx.Description,
		AmountMinor:          tx.Amount,
		Currency:             tx.Currency,
		Direction:            string(tx.Direction),
		BalanceAfterMinor:    nullInt64Ptr(tx.BalanceAfter),
		OriginalAmountMinor:  tx.OriginalAmount,
		CorrectedAmountMinor: nullInt64Ptr(tx.CorrectedAmount),
		Flagged:              tx.Flagged,
		Warnings:             nonNil(tx.Warnings),
		RawLine:              tx.RawLine,
		CreatedTS:            created,
	}
	if tx.Category != nil {
		row.Category = bigquery.NullString{StringVal: *tx.Category, Valid: true}
	}
	return row
}

func (r *TransactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		ID:              r.TransactionID,
		StatementID:     r.StatementID,
		RunID:           r.RunID,
		Sequence:        int(r.Sequence),
		Date:            r.TransactionDate.In(time.UTC),
		Description:     r.Description,
		Amount:          r.AmountMinor,
		Currency:        r.Currency,
		Direction:       domain.Direction(r.Direction),
		BalanceAfter:    int64Ptr(r.BalanceAfterMinor),
		OriginalAmount:  r.OriginalAmountMinor,
		CorrectedAmount: int64Ptr(r.CorrectedAmountMinor),
		Flagged:         r.Flagged,
		RawLine:         r.RawLine,
	}
	if r.Category.Valid {
		c := r.Category.StringVal
		tx.Category = &c
	}
	if len(r.Warnings) > 0 {
		tx.Warnings = r.Warnings
	}
	return tx
}

func runToRows(run domain.RunRecord, outputID string) (*ParsingRunRow, *ModelOutputRow, error) {
	pr := &ParsingRunRow{
		ParsingRunID: run.RunID,
		StatementID:  run.StatementID,
		StartedTS:    run.StartedAt,
		FinishedTS:   run.FinishedAt,
		Provider:     run.Provider,
		Status:       string(run.Status),
		ErrorMessage: run.ErrorMessage,
	}
	if run.Output == nil && run.Text == "" {
		return pr, nil, nil
	}

	mo := &ModelOutputRow{
		OutputID:     outputID,
		ParsingRunID: run.RunID,
		StatementID:  run.StatementID,
		Kind:         run.Provider,
		CreatedTS:    run.FinishedAt,
	}
	if run.Output != nil {
		raw, err := json.Marshal(run.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("runToRows: encoding output: %w", err)
		}
		mo.Kind = run.Output.Kind
		mo.RawJSON = bigquery.NullJSON{JSONVal: string(raw), Valid: true}
	}
	if run.Text != "" {
		mo.ExtractedText = bigquery.NullString{StringVal: run.Text, Valid: true}
	}
	return pr, mo, nil
}

func notificationToRow(n domain.Notification) *NotificationRow {
	return &NotificationRow{
		NotificationID:   n.ID,
		StatementID:      n.StatementID,
		Status:           string(n.Status),
		TransactionCount: int64(n.TransactionCount),
		FlaggedCount:     int64(n.FlaggedCount),
		Errors:           nonNil(n.Errors),
		CreatedTS:        n.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

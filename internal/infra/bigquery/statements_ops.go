package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

const statementColumns = `
			statement_id,
			account_ref,
			bank_name,
			currency,
			statement_month,
			statement_year,
			period_start,
			period_end,
			source_path,
			source_mime_type,
			source_filename,
			checksum_sha256,
			status,
			processing_errors,
			processing_warnings,
			active_run_id,
			extraction_method,
			low_confidence,
			created_ts,
			updated_ts`

// SaveStatementWithClient upserts a statement row with MERGE so the status
// column always reflects the latest transition.
func SaveStatementWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, s *domain.Statement) error {
	row := statementToRow(s)

	q := client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @statement_id AS statement_id) S
		ON T.statement_id = S.statement_id
		WHEN MATCHED THEN UPDATE SET
			account_ref = @account_ref,
			bank_name = @bank_name,
			currency = @currency,
			statement_month = @statement_month,
			statement_year = @statement_year,
			period_start = @period_start,
			period_end = @period_end,
			status = @status,
			processing_errors = @processing_errors,
			processing_warnings = @processing_warnings,
			active_run_id = @active_run_id,
			extraction_method = @extraction_method,
			low_confidence = @low_confidence,
			updated_ts = @updated_ts
		WHEN NOT MATCHED THEN INSERT (%s
		) VALUES (
			@statement_id, @account_ref, @bank_name, @currency,
			@statement_month, @statement_year, @period_start, @period_end,
			@source_path, @source_mime_type, @source_filename, @checksum_sha256,
			@status, @processing_errors, @processing_warnings,
			@active_run_id, @extraction_method, @low_confidence,
			@created_ts, @updated_ts
		)
	`, ds.Table(statementsTable), statementColumns))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: row.StatementID},
		{Name: "account_ref", Value: row.AccountRef},
		{Name: "bank_name", Value: row.BankName},
		{Name: "currency", Value: row.Currency},
		{Name: "statement_month", Value: row.StatementMonth},
		{Name: "statement_year", Value: row.StatementYear},
		{Name: "period_start", Value: row.PeriodStart},
		{Name: "period_end", Value: row.PeriodEnd},
		{Name: "source_path", Value: row.SourcePath},
		{Name: "source_mime_type", Value: row.SourceMimeType},
		{Name: "source_filename", Value: row.SourceFilename},
		{Name: "checksum_sha256", Value: row.ChecksumSHA256},
		{Name: "status", Value: row.Status},
		{Name: "processing_errors", Value: row.ProcessingErrors},
		{Name: "processing_warnings", Value: row.ProcessingWarnings},
		{Name: "active_run_id", Value: row.ActiveRunID},
		{Name: "extraction_method", Value: row.ExtractionMethod},
		{Name: "low_confidence", Value: row.LowConfidence},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("SaveStatement: %w", err)
	}
	return nil
}

// GetStatementWithClient returns domain.ErrStatementNotFound for an unknown id.
func GetStatementWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, id string) (*domain.Statement, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE statement_id = @statement_id
		LIMIT 1
	`, statementColumns, ds.Table(statementsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: id},
	}

	rows, err := readStatements(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetStatement: %s: %w", id, domain.ErrStatementNotFound)
	}
	return rows[0], nil
}

// ListStatementsWithClient returns statements newest first. A non-positive
// limit returns all of them.
func ListStatementsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]*domain.Statement, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_ts DESC
	`, statementColumns, ds.Table(statementsTable))
	if limit > 0 {
		query += fmt.Sprintf("LIMIT %d", limit)
	}

	rows, err := readStatements(ctx, client.Query(query))
	if err != nil {
		return nil, fmt.Errorf("ListStatements: %w", err)
	}
	return rows, nil
}

// FindStatementByChecksumWithClient returns the earliest statement uploaded
// with the given checksum, or nil if there is none.
func FindStatementByChecksumWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, checksum string) (*domain.Statement, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE checksum_sha256 = @checksum
		ORDER BY created_ts
		LIMIT 1
	`, statementColumns, ds.Table(statementsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "checksum", Value: checksum},
	}

	rows, err := readStatements(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("FindStatementByChecksum: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func readStatements(ctx context.Context, q *bigquery.Query) ([]*domain.Statement, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	var out []*domain.Statement
	for {
		var row StatementRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

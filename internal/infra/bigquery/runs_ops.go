package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// RecordRunWithClient writes the parsing_runs row of a finished run and, when
// the run produced text, the raw provider output into model_outputs.
func RecordRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, run domain.RunRecord) error {
	pr, mo, err := runToRows(run, uuid.NewString())
	if err != nil {
		return fmt.Errorf("RecordRun: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (
			parsing_run_id, statement_id, started_ts, finished_ts,
			provider, status, error_message
		)
		VALUES (
			@parsing_run_id, @statement_id, @started_ts, @finished_ts,
			@provider, @status, @error_message
		)
	`, ds.Table(parsingRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "parsing_run_id", Value: pr.ParsingRunID},
		{Name: "statement_id", Value: pr.StatementID},
		{Name: "started_ts", Value: pr.StartedTS},
		{Name: "finished_ts", Value: pr.FinishedTS},
		{Name: "provider", Value: pr.Provider},
		{Name: "status", Value: pr.Status},
		{Name: "error_message", Value: pr.ErrorMessage},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("RecordRun: inserting parsing run: %w", err)
	}

	if mo == nil {
		return nil
	}
	if err := InsertModelOutputWithClient(ctx, client, ds, mo); err != nil {
		return fmt.Errorf("RecordRun: %w", err)
	}
	return nil
}

// InsertModelOutputWithClient inserts a single ModelOutputRow. Uses DML INSERT
// to avoid streaming buffer issues.
func InsertModelOutputWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *ModelOutputRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (
			output_id, parsing_run_id, statement_id,
			kind, raw_json, extracted_text, created_ts
		)
		VALUES (
			@output_id, @parsing_run_id, @statement_id,
			@kind, @raw_json, @extracted_text, @created_ts
		)
	`, ds.Table(modelOutputsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "parsing_run_id", Value: row.ParsingRunID},
		{Name: "statement_id", Value: row.StatementID},
		{Name: "kind", Value: row.Kind},
		{Name: "raw_json", Value: row.RawJSON},
		{Name: "extracted_text", Value: row.ExtractedText},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertModelOutput: %w", err)
	}
	return nil
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

const transactionColumns = `
			transaction_id,
			statement_id,
			run_id,
			sequence,
			transaction_date,
			description,
			amount_minor,
			currency,
			direction,
			category,
			balance_after_minor,
			original_amount_minor,
			corrected_amount_minor,
			flagged,
			warnings,
			raw_line,
			created_ts`

// InsertTransactionsWithClient writes one run's batch in a single DML
// statement. Streaming inserts are avoided because rows in the streaming
// buffer cannot be deleted when the set is later superseded.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID, runID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	created := time.Now().UTC()
	rows := make([]TransactionRow, 0, len(txs))
	for _, tx := range txs {
		if tx.StatementID != statementID || tx.RunID != runID {
			return fmt.Errorf("InsertTransactions: transaction %s belongs to %s/%s, not %s/%s",
				tx.ID, tx.StatementID, tx.RunID, statementID, runID)
		}
		rows = append(rows, transactionToRow(tx, created))
	}

	// The struct field order of TransactionRow matches transactionColumns.
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (%s
		)
		SELECT * FROM UNNEST(@rows)
	`, ds.Table(transactionsTable), transactionColumns))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rows", Value: rows},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertTransactions: %w", err)
	}
	return nil
}

// ListActiveTransactionsWithClient returns the set produced by the
// statement's active run, in statement order. Rows of superseded or
// in-flight runs are never returned.
func ListActiveTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string) ([]domain.Transaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT t.*
		FROM %s t
		INNER JOIN %s s
		  ON t.statement_id = s.statement_id
		 AND t.run_id = s.active_run_id
		WHERE s.statement_id = @statement_id
		ORDER BY t.sequence
	`, ds.Table(transactionsTable), ds.Table(statementsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveTransactions: reading query: %w", err)
	}

	var out []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveTransactions: iterating: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

// DeleteSupersededTransactionsWithClient removes every set of the statement
// except keepRunID.
func DeleteSupersededTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID, keepRunID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE statement_id = @statement_id
		  AND run_id != @run_id
	`, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
		{Name: "run_id", Value: keepRunID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("DeleteSupersededTransactions: %w", err)
	}
	return nil
}

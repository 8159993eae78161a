package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteStatementWithClient deletes a statement and all its related data.
// Children go first so a failure half way never leaves orphaned rows behind
// a missing statement.
func DeleteStatementWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string) error {
	for _, table := range []string{
		transactionsTable,
		modelOutputsTable,
		parsingRunsTable,
		notificationsTable,
		statementsTable,
	} {
		if err := deleteByStatement(ctx, client, ds, table, statementID); err != nil {
			return fmt.Errorf("DeleteStatement: deleting %s: %w", table, err)
		}
	}
	return nil
}

func deleteByStatement(ctx context.Context, client *bigquery.Client, ds Dataset, table, statementID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE statement_id = @statement_id
	`, ds.Table(table)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}
	return runDML(ctx, q)
}

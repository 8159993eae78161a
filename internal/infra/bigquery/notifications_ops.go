package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// InsertNotificationWithClient appends a notification to the outbox table.
// Delivery is left to whatever consumes rows with a NULL delivered_ts.
func InsertNotificationWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, n domain.Notification) error {
	row := notificationToRow(n)

	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (
			notification_id, statement_id, status,
			transaction_count, flagged_count, errors, created_ts
		)
		VALUES (
			@notification_id, @statement_id, @status,
			@transaction_count, @flagged_count, @errors, @created_ts
		)
	`, ds.Table(notificationsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "notification_id", Value: row.NotificationID},
		{Name: "statement_id", Value: row.StatementID},
		{Name: "status", Value: row.Status},
		{Name: "transaction_count", Value: row.TransactionCount},
		{Name: "flagged_count", Value: row.FlaggedCount},
		{Name: "errors", Value: row.Errors},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertNotification: %w", err)
	}
	return nil
}

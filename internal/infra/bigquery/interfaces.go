package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

const (
	statementsTable    = "statements"
	transactionsTable  = "transactions"
	parsingRunsTable   = "parsing_runs"
	modelOutputsTable  = "model_outputs"
	notificationsTable = "notifications"
)

// Dataset locates the tables used by the pipeline.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, backquoted table name for use in SQL.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// Repository is the BigQuery implementation of the statement repository, the
// run recorder and the notification outbox. It holds a shared BigQuery client
// to avoid creating a new connection for each operation.
type Repository struct {
	client  *bigquery.Client
	dataset Dataset
}

// NewRepository creates a Repository with its own client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewRepository: project id is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, Dataset{ProjectID: projectID, DatasetID: datasetID}), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, dataset Dataset) *Repository {
	return &Repository{client: client, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	return GetStatementWithClient(ctx, r.client, r.dataset, id)
}

func (r *Repository) SaveStatement(ctx context.Context, s *domain.Statement) error {
	return SaveStatementWithClient(ctx, r.client, r.dataset, s)
}

func (r *Repository) ListStatements(ctx context.Context, limit int) ([]*domain.Statement, error) {
	return ListStatementsWithClient(ctx, r.client, r.dataset, limit)
}

func (r *Repository) FindStatementByChecksum(ctx context.Context, checksum string) (*domain.Statement, error) {
	return FindStatementByChecksumWithClient(ctx, r.client, r.dataset, checksum)
}

func (r *Repository) ReplaceTransactions(ctx context.Context, statementID, runID string, txs []domain.Transaction) error {
	return InsertTransactionsWithClient(ctx, r.client, r.dataset, statementID, runID, txs)
}

func (r *Repository) ListTransactions(ctx context.Context, statementID string) ([]domain.Transaction, error) {
	return ListActiveTransactionsWithClient(ctx, r.client, r.dataset, statementID)
}

func (r *Repository) PruneTransactions(ctx context.Context, statementID, keepRunID string) error {
	return DeleteSupersededTransactionsWithClient(ctx, r.client, r.dataset, statementID, keepRunID)
}

func (r *Repository) RecordRun(ctx context.Context, run domain.RunRecord) error {
	return RecordRunWithClient(ctx, r.client, r.dataset, run)
}

func (r *Repository) EnqueueNotification(ctx context.Context, n domain.Notification) error {
	return InsertNotificationWithClient(ctx, r.client, r.dataset, n)
}

// DeleteStatement removes a statement with its runs, outputs, notifications
// and every transaction set.
func (r *Repository) DeleteStatement(ctx context.Context, id string) error {
	return DeleteStatementWithClient(ctx, r.client, r.dataset, id)
}

// runDML executes a DML statement and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

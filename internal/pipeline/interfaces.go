package pipeline

import (
	"context"

	"github.com/dvloznov/statement-pipeline/internal/amount"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/extract"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
	"github.com/dvloznov/statement-pipeline/internal/parser"
)

// DocumentStore reads and writes raw uploaded bytes.
type DocumentStore interface {
	// Put stores data under objectName and returns the path to read it back.
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// StatementRepository persists statements and their transaction sets.
type StatementRepository interface {
	// GetStatement returns domain.ErrStatementNotFound for unknown ids.
	GetStatement(ctx context.Context, id string) (*domain.Statement, error)
	// SaveStatement inserts or overwrites the statement row.
	SaveStatement(ctx context.Context, st *domain.Statement) error
	ListStatements(ctx context.Context, limit int) ([]*domain.Statement, error)
	// FindStatementByChecksum returns nil, nil when nothing matches.
	FindStatementByChecksum(ctx context.Context, checksum string) (*domain.Statement, error)

	// ReplaceTransactions writes the batch of runID. It becomes live once the
	// statement's ActiveRunID points at it.
	ReplaceTransactions(ctx context.Context, statementID, runID string, txs []domain.Transaction) error
	// ListTransactions returns the live set in document order.
	ListTransactions(ctx context.Context, statementID string) ([]domain.Transaction, error)
	// PruneTransactions deletes every set of the statement except keepRunID.
	// An empty keepRunID deletes them all.
	PruneTransactions(ctx context.Context, statementID, keepRunID string) error
}

// Notifier queues a notification for delivery by another system.
type Notifier interface {
	EnqueueNotification(ctx context.Context, n domain.Notification) error
}

// RunRecorder keeps a diagnostic record of every run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
}

// TextExtractor reads an embedded text layer. A nil result means none.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*extract.Result, error)
}

// Recognizer turns document bytes into text with OCR.
type Recognizer interface {
	Run(ctx context.Context, data []byte, mimeType string) (*ocr.Result, error)
}

// StatementParser turns raw text into transaction candidates.
type StatementParser interface {
	Parse(rawText string, hints parser.Hints) (*parser.Parsed, error)
}

// TransactionNormalizer converts candidates into transactions.
type TransactionNormalizer interface {
	NormalizeAll(sc amount.StatementContext, candidates []domain.Candidate) ([]domain.Transaction, []string)
}

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/extract"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/statement"
	"github.com/dvloznov/statement-pipeline/internal/storage"
)

// UploadRequest describes a new statement document.
type UploadRequest struct {
	Filename   string
	MimeType   string
	BankName   string
	AccountRef string
	Currency   string
	Month      int
	Year       int
	Data       []byte
}

// UploadResult is the created statement. DuplicateOf names an earlier
// statement with identical bytes, if any.
type UploadResult struct {
	Statement   *domain.Statement `json:"statement"`
	DuplicateOf string            `json:"duplicate_of,omitempty"`
}

// Service is the entry point used by the API, worker and CLI.
type Service struct {
	store           DocumentStore
	repo            StatementRepository
	orchestrator    *Orchestrator
	defaultCurrency string
	now             func() time.Time
}

func NewService(store DocumentStore, repo StatementRepository, orchestrator *Orchestrator, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "GBP"
	}
	return &Service{
		store:           store,
		repo:            repo,
		orchestrator:    orchestrator,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// CreateStatement stores the document and records a pending statement.
func (s *Service) CreateStatement(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("CreateStatement: empty document")
	}
	if req.Month < 0 || req.Month > 12 {
		return nil, fmt.Errorf("CreateStatement: invalid month %d", req.Month)
	}

	sum := sha256.Sum256(req.Data)
	checksum := hex.EncodeToString(sum[:])

	var duplicateOf string
	prev, err := s.repo.FindStatementByChecksum(ctx, checksum)
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: checking duplicates: %w", err)
	}
	if prev != nil {
		duplicateOf = prev.ID
	}

	id := uuid.NewString()
	mimeType := extract.DetectMimeType(req.Data, req.MimeType)

	path, err := s.store.Put(ctx, storage.ObjectName(id, req.Filename), req.Data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: storing document: %w", err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	st := statement.New(id, s.now())
	st.BankName = strings.TrimSpace(req.BankName)
	st.AccountRef = strings.TrimSpace(req.AccountRef)
	st.Currency = currency
	st.StatementMonth = req.Month
	st.StatementYear = req.Year
	st.Source = domain.SourceDocument{
		Path:           path,
		MimeType:       mimeType,
		Filename:       req.Filename,
		ChecksumSHA256: checksum,
	}

	if err := s.repo.SaveStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("CreateStatement: saving statement: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("statement_id", id).Str("path", path).Str("mime_type", mimeType).Msg("statement created")
	if duplicateOf != "" {
		log.Warn().Str("statement_id", id).Str("duplicate_of", duplicateOf).Msg("document was uploaded before")
	}
	return &UploadResult{Statement: st.Clone(), DuplicateOf: duplicateOf}, nil
}

// Upload creates the statement and processes it synchronously.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	res, err := s.CreateStatement(ctx, req)
	if err != nil {
		return nil, err
	}
	st, err := s.orchestrator.ProcessStatement(ctx, res.Statement.ID, req.Data, res.Statement.Source.MimeType)
	if err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}
	res.Statement = st
	return res, nil
}

// Process runs the pipeline over the stored document of a statement.
func (s *Service) Process(ctx context.Context, id string) (*domain.Statement, error) {
	st, err := s.repo.GetStatement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Process: loading statement: %w", err)
	}
	data, err := s.store.Get(ctx, st.Source.Path)
	if err != nil {
		return nil, fmt.Errorf("Process: fetching document: %w", err)
	}
	return s.orchestrator.ProcessStatement(ctx, id, data, st.Source.MimeType)
}

// Retry re-runs the pipeline for a statement. The new run's transactions
// replace the previous set; running it twice on the same bytes yields the
// same set.
func (s *Service) Retry(ctx context.Context, id string) (*domain.Statement, error) {
	log := logger.FromContext(ctx)
	log.Info().Str("statement_id", id).Msg("retry requested")
	st, err := s.Process(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Retry: %w", err)
	}
	return st, nil
}

// GetStatement returns one statement.
func (s *Service) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	return s.repo.GetStatement(ctx, id)
}

// ListStatements returns the most recent statements first.
func (s *Service) ListStatements(ctx context.Context, limit int) ([]*domain.Statement, error) {
	return s.repo.ListStatements(ctx, limit)
}

// ListTransactions returns the live transaction set of a statement.
func (s *Service) ListTransactions(ctx context.Context, id string) ([]domain.Transaction, error) {
	if _, err := s.repo.GetStatement(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, id)
}

// HandleJob runs a queued job. It satisfies jobs.JobHandler.
func (s *Service) HandleJob(ctx context.Context, job *jobs.ProcessStatementJob) (string, error) {
	run := s.Process
	if job.Kind == jobs.JobKindRetry {
		run = s.Retry
	}
	st, err := run(ctx, job.StatementID)
	if st == nil {
		return "", err
	}
	return string(st.Status), err
}

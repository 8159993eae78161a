// Package pipeline drives a statement from raw bytes to a persisted
// transaction set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
	"github.com/dvloznov/statement-pipeline/internal/statement"
)

var (
	ErrNoTransactionsExtracted = errors.New("no transactions extracted")
	ErrStatementNotFound       = domain.ErrStatementNotFound
)

// Deps are the collaborators of an Orchestrator. Notifier and Runs are
// optional. Locks may be shared by orchestrators in the same process.
type Deps struct {
	Repository StatementRepository
	Extractor  TextExtractor
	OCR        Recognizer
	Parser     StatementParser
	Normalizer TransactionNormalizer
	Notifier   Notifier
	Runs       RunRecorder
	Locks      *statement.KeyedLocker
}

// Orchestrator runs the extraction pipeline for one statement at a time per
// statement id.
type Orchestrator struct {
	deps     Deps
	cfg      config.PipelineConfig
	pipeline *Pipeline
	now      func() time.Time
}

func NewOrchestrator(deps Deps, cfg config.PipelineConfig) *Orchestrator {
	if deps.Locks == nil {
		deps.Locks = statement.NewKeyedLocker()
	}
	if cfg.EmptyStatementPolicy == "" {
		cfg.EmptyStatementPolicy = config.EmptyStatementFail
	}
	if cfg.ConcurrentRunPolicy == "" {
		cfg.ConcurrentRunPolicy = config.ConcurrentRunWait
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		pipeline: NewPipeline(
			&ExtractTextStep{Extractor: deps.Extractor},
			&OCRStep{OCR: deps.OCR},
			&ParseStep{Parser: deps.Parser},
			&NormalizeStep{Normalizer: deps.Normalizer, DefaultCurrency: cfg.DefaultCurrency},
			&EmptyStatementStep{Policy: cfg.EmptyStatementPolicy},
			&PersistTransactionsStep{Repository: deps.Repository},
		),
		now: time.Now,
	}
}

// ProcessStatement runs the pipeline over data for the given statement and
// returns the statement in its final state. Pipeline outcomes are reported
// through the statement status; the error is only set for infrastructure
// failures: unknown statement, lock rejected or persistence failure.
func (o *Orchestrator) ProcessStatement(ctx context.Context, statementID string, data []byte, mimeType string) (*domain.Statement, error) {
	ctx = logger.WithStatement(ctx, statementID)
	log := logger.FromContext(ctx)

	unlock, err := o.acquire(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("ProcessStatement: %w", err)
	}
	defer unlock()

	st, err := o.deps.Repository.GetStatement(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("ProcessStatement: loading statement: %w", err)
	}
	if st.Status == domain.StatusProcessing {
		log.Warn().Msg("statement left in processing by an interrupted run, recovering")
	}
	if err := statement.Start(st, o.now()); err != nil {
		return nil, fmt.Errorf("ProcessStatement: %w", err)
	}
	if err := o.deps.Repository.SaveStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("ProcessStatement: marking processing: %w", err)
	}

	state := &RunState{
		Statement: st,
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
		Data:      data,
		MimeType:  mimeType,
	}
	runCtx := logger.WithContext(ctx, log.With().Str("run_id", state.RunID).Logger())
	runCtx, cancel := o.withTimeout(runCtx)
	defer cancel()

	runLog := logger.FromContext(runCtx)
	runLog.Info().Str("mime_type", mimeType).Int("bytes", len(data)).Msg("run started")
	runErr := o.pipeline.Execute(runCtx, state)
	return o.finish(runCtx, state, runErr)
}

func (o *Orchestrator) acquire(ctx context.Context, id string) (func(), error) {
	if o.cfg.ConcurrentRunPolicy == config.ConcurrentRunReject {
		return o.deps.Locks.TryLock(id)
	}
	return o.deps.Locks.Lock(ctx, id)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, o.cfg.Timeout, fmt.Errorf("pipeline timeout after %s", o.cfg.Timeout))
}

// finish moves the statement to its terminal state. The status write uses a
// context detached from the run so a cancelled run never stays in processing.
func (o *Orchestrator) finish(runCtx context.Context, state *RunState, runErr error) (*domain.Statement, error) {
	fctx := context.WithoutCancel(runCtx)
	log := logger.FromContext(runCtx)
	st := state.Statement
	now := o.now()

	st.ExtractionMethod = state.Provider
	st.ProcessingWarnings = state.Warnings

	var (
		reasons  []string
		infraErr error
	)
	if runErr == nil {
		if err := statement.Complete(st, state.RunID, now); err != nil {
			return nil, fmt.Errorf("ProcessStatement: %w", err)
		}
	} else {
		reasons = failureReasons(runCtx, runErr)
		var pe *persistenceError
		if errors.As(runErr, &pe) {
			infraErr = runErr
		}
		if err := statement.Fail(st, reasons, now); err != nil {
			return nil, fmt.Errorf("ProcessStatement: %w", err)
		}
	}

	if err := o.deps.Repository.SaveStatement(fctx, st); err != nil {
		log.Error().Err(err).Str("status", string(st.Status)).Msg("failed to save final statement status")
		return nil, fmt.Errorf("ProcessStatement: saving final status: %w", err)
	}

	event := log.Info()
	if st.Status == domain.StatusFailed {
		event = log.Warn().Strs("errors", st.ProcessingErrors)
	}
	event.Str("status", string(st.Status)).
		Str("provider", state.Provider).
		Int("transactions", len(state.Transactions)).
		Dur("elapsed", now.Sub(state.StartedAt)).
		Msg("run finished")

	// A failed run keeps no set, including any batch it wrote itself.
	keep := ""
	if st.Status == domain.StatusCompleted {
		keep = state.RunID
	}
	if err := o.deps.Repository.PruneTransactions(fctx, st.ID, keep); err != nil {
		log.Warn().Err(err).Msg("failed to delete superseded transactions")
	}
	o.recordRun(fctx, state, reasons, now)
	o.notify(fctx, state)

	if infraErr != nil {
		return st.Clone(), fmt.Errorf("ProcessStatement: %w", infraErr)
	}
	return st.Clone(), nil
}

func failureReasons(runCtx context.Context, err error) []string {
	if runCtx.Err() != nil {
		return []string{"cancelled: " + context.Cause(runCtx).Error()}
	}
	var all *ocr.AllProvidersFailedError
	if errors.As(err, &all) {
		return all.Reasons()
	}
	var se *StepError
	if errors.As(err, &se) {
		return []string{se.Err.Error()}
	}
	return []string{err.Error()}
}

// recordRun is best-effort; a failure is logged and never changes the outcome.
func (o *Orchestrator) recordRun(ctx context.Context, state *RunState, reasons []string, finished time.Time) {
	if o.deps.Runs == nil {
		return
	}
	run := domain.RunRecord{
		RunID:        state.RunID,
		StatementID:  state.Statement.ID,
		Provider:     state.Provider,
		Status:       state.Statement.Status,
		ErrorMessage: strings.Join(reasons, "; "),
		Text:         state.Text,
		Output:       state.Output,
		StartedAt:    state.StartedAt,
		FinishedAt:   finished,
	}
	if err := o.deps.Runs.RecordRun(ctx, run); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to record run")
	}
}

// notify is best-effort; delivery problems never roll back the status.
func (o *Orchestrator) notify(ctx context.Context, state *RunState) {
	if o.deps.Notifier == nil {
		return
	}
	st := state.Statement
	n := domain.Notification{
		ID:               uuid.NewString(),
		StatementID:      st.ID,
		Status:           st.Status,
		TransactionCount: len(state.Transactions),
		Errors:           st.ProcessingErrors,
		CreatedAt:        o.now(),
	}
	if st.Status == domain.StatusFailed {
		n.TransactionCount = 0
	}
	for _, tx := range state.Transactions {
		if tx.Flagged && st.Status == domain.StatusCompleted {
			n.FlaggedCount++
		}
	}
	if err := o.deps.Notifier.EnqueueNotification(ctx, n); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to enqueue notification")
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/amount"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/parser"
)

// Step is a single stage of a statement run.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *RunState) error
}

// RunState holds the shared state across all steps of one run.
type RunState struct {
	Statement *domain.Statement
	RunID     string
	StartedAt time.Time

	Data     []byte
	MimeType string

	// Text is the statement text; Provider is what produced it.
	Text     string
	Provider string
	Output   *domain.ProviderOutput

	Parsed       *parser.Parsed
	Transactions []domain.Transaction
	Warnings     []string
}

// StepError records which step stopped the run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// persistenceError marks failures of the statement repository, which are
// reported to the caller as well as recorded on the statement.
type persistenceError struct {
	op  string
	err error
}

func (e *persistenceError) Error() string { return e.op + ": " + e.err.Error() }

func (e *persistenceError) Unwrap() error { return e.err }

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first error or when
// ctx is done.
func (p *Pipeline) Execute(ctx context.Context, state *RunState) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
		if err := step.Execute(ctx, state); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
	}
	return nil
}

// ExtractTextStep reads the embedded PDF text layer when there is one.
type ExtractTextStep struct {
	Extractor TextExtractor
}

func (s *ExtractTextStep) Name() string { return "extract_text" }

func (s *ExtractTextStep) Execute(ctx context.Context, state *RunState) error {
	res, err := s.Extractor.Extract(ctx, state.Data, state.MimeType)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	if res == nil {
		log.Debug().Msg("no usable text layer, falling back to OCR")
		return nil
	}

	payload, err := json.Marshal(map[string]int{"page_count": res.PageCount, "chars": len(res.Text)})
	if err != nil {
		return fmt.Errorf("ExtractTextStep: encoding output: %w", err)
	}
	state.Text = res.Text
	state.Provider = domain.ExtractionTextLayer
	state.Output = &domain.ProviderOutput{Kind: domain.OutputPDFTextLayer, Payload: payload}
	log.Info().Int("pages", res.PageCount).Msg("using PDF text layer")
	return nil
}

// OCRStep runs the provider chain unless the text layer was enough.
type OCRStep struct {
	OCR Recognizer
}

func (s *OCRStep) Name() string { return "ocr" }

func (s *OCRStep) Execute(ctx context.Context, state *RunState) error {
	if state.Text != "" {
		return nil
	}
	res, err := s.OCR.Run(ctx, state.Data, state.MimeType)
	if err != nil {
		return err
	}
	state.Text = res.Text
	state.Provider = res.Provider
	state.Output = res.Raw
	for _, pe := range res.Suppressed {
		state.Warnings = append(state.Warnings, "OCR provider "+pe.Error())
	}
	return nil
}

// ParseStep turns the text into candidates, using the statement's metadata
// as hints and filling in what the header reveals.
type ParseStep struct {
	Parser StatementParser
}

func (s *ParseStep) Name() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, state *RunState) error {
	st := state.Statement
	parsed, err := s.Parser.Parse(state.Text, parser.Hints{
		BankName:   st.BankName,
		AccountRef: st.AccountRef,
		Currency:   st.Currency,
		Year:       st.StatementYear,
		Month:      st.StatementMonth,
	})
	if errors.Is(err, parser.ErrEmptyText) {
		parsed = &parser.Parsed{LowConfidence: true, Profile: parser.GenericProfile}
	} else if err != nil {
		return err
	}

	h := parsed.Header
	if st.PeriodStart == nil {
		st.PeriodStart = h.PeriodStart
	}
	if st.PeriodEnd == nil {
		st.PeriodEnd = h.PeriodEnd
	}
	if st.AccountRef == "" {
		st.AccountRef = h.AccountNumber
	}
	if st.BankName == "" && parsed.Profile != parser.GenericProfile {
		st.BankName = parsed.Profile
	}
	st.LowConfidence = parsed.LowConfidence

	state.Parsed = parsed
	log := logger.FromContext(ctx)
	log.Info().
		Str("profile", parsed.Profile).
		Int("candidates", len(parsed.Candidates)).
		Bool("low_confidence", parsed.LowConfidence).
		Msg("statement parsed")
	return nil
}

// NormalizeStep converts candidates into transactions of this run.
type NormalizeStep struct {
	Normalizer      TransactionNormalizer
	DefaultCurrency string
}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *RunState) error {
	currency := state.Statement.Currency
	if currency == "" {
		currency = s.DefaultCurrency
	}
	txs, warnings := s.Normalizer.NormalizeAll(amount.StatementContext{
		StatementID: state.Statement.ID,
		Currency:    currency,
	}, state.Parsed.Candidates)

	for i := range txs {
		txs[i].ID = uuid.NewString()
		txs[i].RunID = state.RunID
	}
	state.Transactions = txs
	state.Warnings = append(state.Warnings, warnings...)
	return nil
}

// EmptyStatementStep applies the policy for runs that found nothing.
type EmptyStatementStep struct {
	Policy string
}

func (s *EmptyStatementStep) Name() string { return "empty_statement" }

func (s *EmptyStatementStep) Execute(ctx context.Context, state *RunState) error {
	if len(state.Transactions) > 0 {
		return nil
	}
	if s.Policy == config.EmptyStatementComplete {
		state.Warnings = append(state.Warnings, ErrNoTransactionsExtracted.Error())
		return nil
	}
	return ErrNoTransactionsExtracted
}

// PersistTransactionsStep writes the run's batch.
type PersistTransactionsStep struct {
	Repository StatementRepository
}

func (s *PersistTransactionsStep) Name() string { return "persist_transactions" }

func (s *PersistTransactionsStep) Execute(ctx context.Context, state *RunState) error {
	if err := s.Repository.ReplaceTransactions(ctx, state.Statement.ID, state.RunID, state.Transactions); err != nil {
		return &persistenceError{op: "persisting transactions", err: err}
	}
	return nil
}

// Package app assembles the pipeline from configuration for the commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/amount"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/extract"
	infraBQ "github.com/dvloznov/statement-pipeline/internal/infra/bigquery"
	"github.com/dvloznov/statement-pipeline/internal/infra/memory"
	"github.com/dvloznov/statement-pipeline/internal/notify"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
	"github.com/dvloznov/statement-pipeline/internal/ocr/gemini"
	"github.com/dvloznov/statement-pipeline/internal/ocr/tesseract"
	"github.com/dvloznov/statement-pipeline/internal/parser"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
	"github.com/dvloznov/statement-pipeline/internal/storage/gcs"
	memstore "github.com/dvloznov/statement-pipeline/internal/storage/memory"
)

// Backend selects where statements and documents live.
type Backend string

const (
	// BackendCloud uses BigQuery and the configured storage backend.
	BackendCloud Backend = "cloud"
	// BackendMemory keeps everything in process, for local runs.
	BackendMemory Backend = "memory"
)

// App holds the long-lived collaborators shared by a command.
type App struct {
	Service      *pipeline.Service
	Orchestrator *pipeline.Orchestrator
	Repository   pipeline.StatementRepository
	Store        pipeline.DocumentStore
	Chain        *ocr.Chain

	// BigQuery is set when the cloud backend is in use.
	BigQuery *infraBQ.Repository

	closers []func() error
}

// New builds the pipeline. With BackendCloud the repository, run recorder and
// notifier are BigQuery; the document store follows STORAGE_BACKEND.
func New(ctx context.Context, cfg config.Config, backend Backend, log zerolog.Logger) (*App, error) {
	a := &App{}
	deps := pipeline.Deps{
		Extractor:  extract.NewPDFTextExtractor(cfg.OCR.MinTextLength),
		Parser:     parser.New(),
		Normalizer: NewNormalizer(cfg),
	}

	a.Chain = NewChain(cfg)
	deps.OCR = a.Chain
	log.Info().Strs("providers", a.Chain.Providers()).Msg("OCR provider chain configured")

	switch backend {
	case BackendMemory:
		repo := memory.NewRepository()
		deps.Repository = repo
		deps.Runs = repo
		deps.Notifier = memory.NewNotifier()
		a.Repository = repo
	case BackendCloud:
		repo, err := infraBQ.NewRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		deps.Repository = repo
		deps.Runs = repo
		deps.Notifier = repo
		a.Repository = repo
		a.BigQuery = repo
	default:
		return nil, fmt.Errorf("app.New: unknown backend %q", backend)
	}

	if cfg.Notion.Enabled() {
		deps.Notifier = notify.Fanout{
			deps.Notifier,
			notify.NewNotionNotifier(notify.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID),
		}
		log.Info().Msg("Statement outcomes mirrored to Notion")
	}

	if err := a.openStore(ctx, cfg, backend); err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	a.Orchestrator = pipeline.NewOrchestrator(deps, cfg.Pipeline)
	a.Service = pipeline.NewService(a.Store, a.Repository, a.Orchestrator, cfg.Pipeline.DefaultCurrency)
	return a, nil
}

// NewChain builds the provider chain: AI vision first, classical OCR second.
// Providers without credentials or disabled stay in the chain and are
// skipped at run time.
func NewChain(cfg config.Config) *ocr.Chain {
	return ocr.NewChain(cfg.OCR.ProviderTimeout, cfg.OCR.MinTextLength,
		gemini.New(gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			UseVertexAI: cfg.Gemini.UseVertex,
			Project:     cfg.Gemini.Project,
			Location:    cfg.Gemini.Location,
		}),
		tesseract.New(tesseract.Config{
			Enabled:   cfg.OCR.TesseractEnabled,
			Languages: cfg.OCR.TesseractLanguages,
			DPI:       cfg.OCR.TesseractDPI,
			Workers:   cfg.OCR.TesseractWorkers,
		}),
	)
}

// NewNormalizer applies the configured amount policy.
func NewNormalizer(cfg config.Config) *amount.Normalizer {
	return amount.NewNormalizer(amount.Policy{
		Ceiling:         cfg.Amount.Ceiling,
		ReviewThreshold: cfg.Amount.ReviewThreshold,
		MedianRatio:     cfg.Amount.MedianRatio,
		TargetRatio:     cfg.Amount.TargetRatio,
		Mode:            cfg.Amount.CorrectionMode,
	})
}

func (a *App) openStore(ctx context.Context, cfg config.Config, backend Backend) error {
	if backend == BackendMemory || cfg.GCP.StorageBackend == "memory" {
		a.Store = memstore.New("local")
		return nil
	}
	if cfg.GCP.Bucket == "" {
		return fmt.Errorf("GCS_BUCKET is required for the gcs storage backend")
	}
	store, err := gcs.New(ctx, cfg.GCP.Bucket)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)
	a.Store = store
	return nil
}

// Close releases clients. Errors are returned for the first failure only.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

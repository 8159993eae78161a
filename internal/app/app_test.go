package app

import (
	"context"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

func testConfig() config.Config {
	return config.Config{
		OCR: config.OCRConfig{MinTextLength: 20},
		Pipeline: config.PipelineConfig{
			EmptyStatementPolicy: config.EmptyStatementFail,
			ConcurrentRunPolicy:  config.ConcurrentRunWait,
			DefaultCurrency:      "GBP",
		},
		GCP: config.GCPConfig{StorageBackend: "gcs"},
	}
}

func TestNew_Memory(t *testing.T) {
	a, err := New(context.Background(), testConfig(), BackendMemory, logger.NewWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if diff := cmp.Diff([]string{"gemini", "tesseract"}, a.Chain.Providers()); diff != "" {
		t.Errorf("provider order mismatch (-want +got):\n%s", diff)
	}
	if a.BigQuery != nil {
		t.Error("memory backend should not open BigQuery")
	}

	res, err := a.Service.CreateStatement(context.Background(), pipeline.UploadRequest{
		Filename: "march.pdf",
		Data:     []byte("%PDF-1.4 not really"),
	})
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	if _, err := a.Store.Get(context.Background(), res.Statement.Source.Path); err != nil {
		t.Errorf("document not stored: %v", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), testConfig(), Backend("sqlite"), logger.NewWithWriter(io.Discard)); err == nil {
		t.Error("expected error for unknown backend")
	}
}

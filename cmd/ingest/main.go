package main

import (
	"context"
	"flag"
	"fmt"
	"path"

	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse CLI flags
	gcsURI := flag.String("gcs-uri", "", "GCS URI of a statement already in the bucket (e.g. gs://bucket/file.pdf)")
	bank := flag.String("bank", "", "Bank name hint")
	currency := flag.String("currency", cfg.Pipeline.DefaultCurrency, "ISO currency code")
	flag.Parse()

	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	if *gcsURI == "" {
		log.Fatal().Msg("Error: --gcs-uri is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Timeout+cfg.HTTP.ShutdownTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, app.BackendCloud, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	defer a.Close()

	log.Info().Str("gcs_uri", *gcsURI).Msg("Starting ingestion")

	data, err := a.Store.Get(ctx, *gcsURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch document")
	}

	res, err := a.Service.Upload(ctx, pipeline.UploadRequest{
		Filename: path.Base(*gcsURI),
		BankName: *bank,
		Currency: *currency,
		Data:     data,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	st := res.Statement
	fmt.Printf("Ingested %s as statement %s (status %s)\n", *gcsURI, st.ID, st.Status)
	for _, e := range st.ProcessingErrors {
		fmt.Printf("  error: %s\n", e)
	}
}

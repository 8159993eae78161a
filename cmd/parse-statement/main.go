// Command parse-statement runs extraction, OCR, parsing and amount
// normalization over a local file and prints the result as JSON. Nothing is
// stored.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/extract"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/parser"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

type output struct {
	Provider      string               `json:"provider"`
	Profile       string               `json:"profile"`
	LowConfidence bool                 `json:"low_confidence"`
	Header        parser.Header        `json:"header"`
	Transactions  []domain.Transaction `json:"transactions"`
	Warnings      []string             `json:"warnings,omitempty"`
	Text          string               `json:"text,omitempty"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	filePath := flag.String("file", "", "Path to local statement (PDF or image)")
	bank := flag.String("bank", "", "Bank name hint")
	currency := flag.String("currency", cfg.Pipeline.DefaultCurrency, "ISO currency code")
	month := flag.Int("month", 0, "Statement month (1-12)")
	year := flag.Int("year", 0, "Statement year")
	showText := flag.Bool("text", false, "Include the extracted text in the output")
	flag.Parse()

	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	if *filePath == "" {
		log.Fatal().Msg("Usage: parse-statement -file PATH [-bank NAME] [-currency GBP] [-month N -year YYYY]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), cfg.Pipeline.Timeout)
	defer cancel()

	state := &pipeline.RunState{
		Statement: &domain.Statement{
			ID:             "local",
			BankName:       *bank,
			Currency:       *currency,
			StatementMonth: *month,
			StatementYear:  *year,
		},
		RunID:    uuid.NewString(),
		Data:     data,
		MimeType: extract.DetectMimeType(data, ""),
	}

	p := pipeline.NewPipeline(
		&pipeline.ExtractTextStep{Extractor: extract.NewPDFTextExtractor(cfg.OCR.MinTextLength)},
		&pipeline.OCRStep{OCR: app.NewChain(cfg)},
		&pipeline.ParseStep{Parser: parser.New()},
		&pipeline.NormalizeStep{Normalizer: app.NewNormalizer(cfg), DefaultCurrency: cfg.Pipeline.DefaultCurrency},
	)
	if err := p.Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Parsing failed")
	}

	out := output{
		Provider:      state.Provider,
		Profile:       state.Parsed.Profile,
		LowConfidence: state.Parsed.LowConfidence,
		Header:        state.Parsed.Header,
		Transactions:  state.Transactions,
		Warnings:      state.Warnings,
	}
	if *showText {
		out.Text = state.Text
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encoding output: %v\n", err)
		os.Exit(1)
	}
}

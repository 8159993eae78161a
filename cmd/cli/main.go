package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/amount"
	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	switch os.Args[1] {
	case "upload":
		runUpload(cfg, log)
	case "process":
		runProcess(cfg, log, false)
	case "retry":
		runProcess(cfg, log, true)
	case "inspect":
		runInspect(cfg, log)
	case "delete":
		runDelete(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Pipeline CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  upload    Store a statement document and process it")
	fmt.Println("  process   Run the pipeline for a stored statement")
	fmt.Println("  retry     Re-run the pipeline, replacing the transaction set")
	fmt.Println("  inspect   Show a statement and its live transactions")
	fmt.Println("  delete    Delete a statement and everything recorded for it")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openApp(ctx context.Context, cfg config.Config, backend string, log zerolog.Logger) *app.App {
	a, err := app.New(ctx, cfg, app.Backend(backend), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	return a
}

func runUpload(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local statement (PDF or image)")
	bank := fs.String("bank", "", "Bank name hint")
	account := fs.String("account", "", "Account reference")
	currency := fs.String("currency", cfg.Pipeline.DefaultCurrency, "ISO currency code")
	month := fs.Int("month", 0, "Statement month (1-12)")
	year := fs.Int("year", 0, "Statement year")
	backend := fs.String("backend", string(app.BackendCloud), "Persistence backend: cloud or memory")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH [-bank NAME] [-currency GBP] [-month N -year YYYY]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a := openApp(ctx, cfg, *backend, log)
	defer a.Close()

	res, err := a.Service.Upload(ctx, pipeline.UploadRequest{
		Filename:   filepath.Base(*filePath),
		BankName:   *bank,
		AccountRef: *account,
		Currency:   *currency,
		Month:      *month,
		Year:       *year,
		Data:       data,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	if res.DuplicateOf != "" {
		fmt.Printf("Note: identical document already uploaded as %s\n", res.DuplicateOf)
	}

	txs, err := a.Service.ListTransactions(ctx, res.Statement.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	printStatement(res.Statement, txs)
}

func runProcess(cfg config.Config, log zerolog.Logger, retry bool) {
	name := "process"
	if retry {
		name = "retry"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	statementID := fs.String("statement-id", "", "Statement ID")
	fs.Parse(os.Args[2:])

	if *statementID == "" {
		log.Fatal().Msg("Error: --statement-id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, string(app.BackendCloud), log)
	defer a.Close()

	run := a.Service.Process
	if retry {
		run = a.Service.Retry
	}
	st, err := run(ctx, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg(strings.ToUpper(name[:1]) + name[1:] + " failed")
	}

	txs, err := a.Service.ListTransactions(ctx, st.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	printStatement(st, txs)
}

func runInspect(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	statementID := fs.String("statement-id", "", "Statement ID to inspect")
	fs.Parse(os.Args[2:])

	if *statementID == "" {
		log.Fatal().Msg("Error: --statement-id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, string(app.BackendCloud), log)
	defer a.Close()

	st, err := a.Service.GetStatement(ctx, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Statement not found")
	}
	txs, err := a.Service.ListTransactions(ctx, st.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	printStatement(st, txs)
}

func runDelete(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	statementID := fs.String("statement-id", "", "Statement ID to delete")
	fs.Parse(os.Args[2:])

	if *statementID == "" {
		log.Fatal().Msg("Error: --statement-id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, string(app.BackendCloud), log)
	defer a.Close()

	if err := a.BigQuery.DeleteStatement(ctx, *statementID); err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}
	fmt.Printf("Deleted statement %s\n", *statementID)
}

func printStatement(st *domain.Statement, txs []domain.Transaction) {
	exp := amount.Exponent(st.Currency)

	fmt.Println("\n=== Statement Details ===")
	fmt.Printf("ID:         %s\n", st.ID)
	fmt.Printf("Bank:       %s\n", st.BankName)
	fmt.Printf("Account:    %s\n", st.AccountRef)
	fmt.Printf("Source:     %s\n", st.Source.Path)
	fmt.Printf("Status:     %s\n", st.Status)
	if st.ExtractionMethod != "" {
		fmt.Printf("Extracted:  %s\n", st.ExtractionMethod)
	}
	if st.LowConfidence {
		fmt.Println("Confidence: low, review the transactions")
	}
	for _, e := range st.ProcessingErrors {
		fmt.Printf("Error:      %s\n", e)
	}
	for _, w := range st.ProcessingWarnings {
		fmt.Printf("Warning:    %s\n", w)
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for i, tx := range txs {
		fmt.Printf("\n%d. %s\n", i+1, tx.Description)
		fmt.Printf("   Date:     %s\n", tx.Date.Format("2006-01-02"))
		fmt.Printf("   Amount:   %s %s\n", amount.Format(tx.Amount, exp), tx.Currency)
		if tx.BalanceAfter != nil {
			fmt.Printf("   Balance:  %s\n", amount.Format(*tx.BalanceAfter, exp))
		}
		if tx.Flagged {
			fmt.Printf("   Flagged:  %s\n", strings.Join(tx.Warnings, "; "))
		}
	}
	fmt.Println()
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/app"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/statement-pipeline/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	interval := flag.Duration("interval", cfg.Jobs.PollInterval, "How often to look for pending statements")
	once := flag.Bool("once", false, "Process what is pending now and exit")
	flag.Parse()

	// Initialize logger
	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, app.BackendCloud, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.BufferSize, cfg.Jobs.Workers, jobStore)

	p := newPoller(a.Repository, jobQueue, a.Service.HandleJob, staleAfter(cfg))

	// Start consuming jobs
	if err := jobQueue.Start(ctx, p.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Dur("interval", *interval).Int("workers", cfg.Jobs.Workers).Msg("Worker service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

loop:
	for {
		n, err := p.Poll(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to poll statements")
		} else if n > 0 {
			log.Info().Int("enqueued", n).Msg("Enqueued pending statements")
		}
		if *once {
			break
		}
		select {
		case <-ticker.C:
		case <-quit:
			break loop
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if *once {
		p.Wait(shutdownCtx)
	}

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
		cancel()
	}

	log.Info().Msg("Worker service exited")
}

// staleAfter is how long a statement may sit in processing before the worker
// treats it as orphaned by a crashed run.
func staleAfter(cfg config.Config) time.Duration {
	if cfg.Pipeline.Timeout > 0 {
		return 2 * cfg.Pipeline.Timeout
	}
	return time.Hour
}

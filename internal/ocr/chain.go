package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dvloznov/statement-pipeline/internal/logger"
)

// Chain tries providers strictly in the order given. Nothing is cached
// between runs.
type Chain struct {
	providers     []Provider
	timeout       time.Duration
	minTextLength int
}

// NewChain builds a chain. A zero timeout leaves provider calls bounded only
// by the caller's context.
func NewChain(timeout time.Duration, minTextLength int, providers ...Provider) *Chain {
	return &Chain{
		providers:     providers,
		timeout:       timeout,
		minTextLength: minTextLength,
	}
}

// Providers returns provider names in priority order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Run returns the first usable result. When every configured provider fails
// it returns *AllProvidersFailedError. Cancellation of ctx stops the chain.
func (c *Chain) Run(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	log := logger.FromContext(ctx)

	var (
		failures []*ProviderError
		skipped  []string
	)
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("Chain.Run: %w", err)
		}
		if !p.Configured() {
			log.Debug().Str("provider", p.Name()).Msg("OCR provider not configured, skipping")
			skipped = append(skipped, p.Name())
			continue
		}

		start := time.Now()
		res, perr := c.attempt(ctx, p, data, mimeType)
		if perr != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("Chain.Run: %s: %w", p.Name(), ctx.Err())
			}
			log.Warn().Err(perr).
				Str("provider", p.Name()).
				Str("kind", string(perr.Kind)).
				Dur("elapsed", time.Since(start)).
				Msg("OCR provider failed, falling back")
			failures = append(failures, perr)
			continue
		}

		log.Info().
			Str("provider", p.Name()).
			Int("chars", len(res.Text)).
			Int("suppressed", len(failures)).
			Dur("elapsed", time.Since(start)).
			Msg("OCR provider succeeded")
		res.Suppressed = failures
		res.Skipped = skipped
		return res, nil
	}

	return nil, &AllProvidersFailedError{Errors: failures, Skipped: skipped}
}

type outcome struct {
	res *Result
	err error
}

// attempt bounds one provider call. A provider that ignores its context is
// abandoned when the deadline passes.
func (c *Chain) attempt(ctx context.Context, p Provider, data []byte, mimeType string) (*Result, *ProviderError) {
	pctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		res, err := p.Transcribe(pctx, data, mimeType)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-pctx.Done():
		return nil, NewProviderError(p.Name(), KindTimeout, pctx.Err())
	}

	if out.err != nil {
		var pe *ProviderError
		switch {
		case errors.As(out.err, &pe):
			return nil, pe
		case errors.Is(out.err, context.DeadlineExceeded):
			return nil, NewProviderError(p.Name(), KindTimeout, out.err)
		default:
			return nil, NewProviderError(p.Name(), KindFailed, out.err)
		}
	}

	if out.res == nil || usableLength(out.res.Text) < c.minTextLength {
		n := 0
		if out.res != nil {
			n = usableLength(out.res.Text)
		}
		return nil, NewProviderError(p.Name(), KindInsufficientText,
			fmt.Errorf("got %d characters, need %d", n, c.minTextLength))
	}
	if out.res.Provider == "" {
		out.res.Provider = p.Name()
	}
	return out.res, nil
}

func usableLength(s string) int {
	return len(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

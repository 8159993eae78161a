// Package statement owns the statement lifecycle:
//
//	pending -> processing -> completed | failed
//	completed | failed -> processing   (explicit retry only)
package statement

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid statement transition")

// TransitionError names the transition that was refused.
type TransitionError struct {
	From domain.StatementStatus
	To   domain.StatementStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func refuse(s *domain.Statement, to domain.StatementStatus) error {
	return &TransitionError{From: s.Status, To: to}
}

// New returns a pending statement.
func New(id string, now time.Time) *domain.Statement {
	return &domain.Statement{
		ID:               id,
		Status:           domain.StatusPending,
		ProcessingErrors: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Begin starts the first run of a pending statement.
func Begin(s *domain.Statement, now time.Time) error {
	if s.Status != domain.StatusPending {
		return refuse(s, domain.StatusProcessing)
	}
	enterProcessing(s, now)
	return nil
}

// Retry re-enters processing from a terminal state. Errors are cleared and
// the previous transaction set stops being live.
func Retry(s *domain.Statement, now time.Time) error {
	if !s.Status.Terminal() {
		return refuse(s, domain.StatusProcessing)
	}
	enterProcessing(s, now)
	return nil
}

// Recover restarts a statement left in processing by a run that died without
// reaching a terminal state. Callers must hold the statement lock, which
// proves no live run owns it.
func Recover(s *domain.Statement, now time.Time) error {
	if s.Status != domain.StatusProcessing {
		return refuse(s, domain.StatusProcessing)
	}
	enterProcessing(s, now)
	return nil
}

// Start picks Begin, Retry or Recover from the current status.
func Start(s *domain.Statement, now time.Time) error {
	switch s.Status {
	case domain.StatusPending:
		return Begin(s, now)
	case domain.StatusProcessing:
		return Recover(s, now)
	case domain.StatusCompleted, domain.StatusFailed:
		return Retry(s, now)
	}
	return refuse(s, domain.StatusProcessing)
}

// enterProcessing detaches the live transaction set: a statement in
// processing exposes no transactions.
func enterProcessing(s *domain.Statement, now time.Time) {
	s.Status = domain.StatusProcessing
	s.ActiveRunID = ""
	s.ProcessingErrors = []string{}
	s.ProcessingWarnings = nil
	s.LowConfidence = false
	s.UpdatedAt = now
}

// Complete ends a successful run. runID becomes the live transaction set.
func Complete(s *domain.Statement, runID string, now time.Time) error {
	if s.Status != domain.StatusProcessing {
		return refuse(s, domain.StatusCompleted)
	}
	s.Status = domain.StatusCompleted
	s.ProcessingErrors = []string{}
	s.ActiveRunID = runID
	s.UpdatedAt = now
	return nil
}

// Fail ends a run with at least one human-readable reason.
func Fail(s *domain.Statement, reasons []string, now time.Time) error {
	if s.Status != domain.StatusProcessing {
		return refuse(s, domain.StatusFailed)
	}
	if len(reasons) == 0 {
		reasons = []string{"unknown error"}
	}
	s.Status = domain.StatusFailed
	s.ProcessingErrors = append([]string(nil), reasons...)
	s.UpdatedAt = now
	return nil
}

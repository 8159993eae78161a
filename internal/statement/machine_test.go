package statement

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

var now = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func withStatus(st domain.StatementStatus) *domain.Statement {
	s := New("s1", now.Add(-time.Hour))
	s.Status = st
	s.ProcessingErrors = []string{"previous failure"}
	s.ProcessingWarnings = []string{"previous warning"}
	return s
}

func TestTransitions(t *testing.T) {
	all := []domain.StatementStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed,
	}
	ops := map[string]struct {
		fn      func(*domain.Statement) error
		allowed map[domain.StatementStatus]bool
		want    domain.StatementStatus
	}{
		"Begin": {
			fn:      func(s *domain.Statement) error { return Begin(s, now) },
			allowed: map[domain.StatementStatus]bool{domain.StatusPending: true},
			want:    domain.StatusProcessing,
		},
		"Retry": {
			fn:      func(s *domain.Statement) error { return Retry(s, now) },
			allowed: map[domain.StatementStatus]bool{domain.StatusCompleted: true, domain.StatusFailed: true},
			want:    domain.StatusProcessing,
		},
		"Recover": {
			fn:      func(s *domain.Statement) error { return Recover(s, now) },
			allowed: map[domain.StatementStatus]bool{domain.StatusProcessing: true},
			want:    domain.StatusProcessing,
		},
		"Complete": {
			fn:      func(s *domain.Statement) error { return Complete(s, "run-2", now) },
			allowed: map[domain.StatementStatus]bool{domain.StatusProcessing: true},
			want:    domain.StatusCompleted,
		},
		"Fail": {
			fn:      func(s *domain.Statement) error { return Fail(s, []string{"boom"}, now) },
			allowed: map[domain.StatementStatus]bool{domain.StatusProcessing: true},
			want:    domain.StatusFailed,
		},
	}

	for name, op := range ops {
		for _, from := range all {
			t.Run(name+"/"+string(from), func(t *testing.T) {
				s := withStatus(from)
				err := op.fn(s)
				if !op.allowed[from] {
					if !errors.Is(err, ErrInvalidTransition) {
						t.Fatalf("err = %v, want ErrInvalidTransition", err)
					}
					if s.Status != from {
						t.Errorf("refused transition changed status to %s", s.Status)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if s.Status != op.want {
					t.Errorf("Status = %s, want %s", s.Status, op.want)
				}
				if !s.UpdatedAt.Equal(now) {
					t.Errorf("UpdatedAt not bumped")
				}
			})
		}
	}
}

func TestRetryClearsErrors(t *testing.T) {
	s := withStatus(domain.StatusFailed)
	if err := Retry(s, now); err != nil {
		t.Fatal(err)
	}
	if len(s.ProcessingErrors) != 0 || s.ProcessingErrors == nil {
		t.Errorf("ProcessingErrors = %#v, want empty non-nil", s.ProcessingErrors)
	}
	if len(s.ProcessingWarnings) != 0 {
		t.Errorf("ProcessingWarnings = %v, want cleared", s.ProcessingWarnings)
	}
}

func TestCompleteSetsActiveRun(t *testing.T) {
	s := withStatus(domain.StatusProcessing)
	s.ActiveRunID = "run-1"
	if err := Complete(s, "run-2", now); err != nil {
		t.Fatal(err)
	}
	if s.ActiveRunID != "run-2" || len(s.ProcessingErrors) != 0 {
		t.Errorf("got run %s errors %v", s.ActiveRunID, s.ProcessingErrors)
	}
}

func TestFailKeepsReasons(t *testing.T) {
	s := withStatus(domain.StatusProcessing)
	reasons := []string{"a", "b"}
	if err := Fail(s, reasons, now); err != nil {
		t.Fatal(err)
	}
	reasons[0] = "mutated"
	if s.ProcessingErrors[0] != "a" || len(s.ProcessingErrors) != 2 {
		t.Errorf("ProcessingErrors = %v", s.ProcessingErrors)
	}

	s = withStatus(domain.StatusProcessing)
	_ = Fail(s, nil, now)
	if len(s.ProcessingErrors) != 1 {
		t.Errorf("failure without reason must still record one, got %v", s.ProcessingErrors)
	}
}

func TestStart(t *testing.T) {
	for _, st := range []domain.StatementStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed,
	} {
		s := withStatus(st)
		if err := Start(s, now); err != nil {
			t.Errorf("Start from %s: %v", st, err)
		}
		if s.Status != domain.StatusProcessing {
			t.Errorf("Start from %s left status %s", st, s.Status)
		}
	}

	s := withStatus("archived")
	if err := Start(s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown status: err = %v", err)
	}
}

func TestEnteringProcessingDetachesLiveSet(t *testing.T) {
	tests := []struct {
		name string
		from domain.StatementStatus
		op   func(*domain.Statement, time.Time) error
	}{
		{"retry completed", domain.StatusCompleted, Retry},
		{"retry failed", domain.StatusFailed, Retry},
		{"recover orphan", domain.StatusProcessing, Recover},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := withStatus(tt.from)
			s.ActiveRunID = "run-1"
			if err := tt.op(s, now); err != nil {
				t.Fatal(err)
			}
			if s.ActiveRunID != "" {
				t.Errorf("ActiveRunID = %q, want empty while processing", s.ActiveRunID)
			}
		})
	}
}

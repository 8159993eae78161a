package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ProcessStatementJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
	return nil
}

func TestQueue_RunsJobs(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	if err := q.Start(context.Background(), func(ctx context.Context, job *jobs.ProcessStatementJob) (string, error) {
		return "completed", nil
	}); err != nil {
		t.Fatal(err)
	}

	job := &jobs.ProcessStatementJob{StatementID: "s1"}
	if err := q.PublishProcessStatement(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.Kind != jobs.JobKindProcess {
		t.Errorf("defaults not applied: %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.StatementStatus != "completed" || done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("job = %+v", done)
	}
}

func TestQueue_FailedJobIsNotRetried(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var calls int32
	_ = q.Start(context.Background(), func(ctx context.Context, job *jobs.ProcessStatementJob) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("document store unavailable")
	})

	job := &jobs.ProcessStatementJob{StatementID: "s1", Kind: jobs.JobKindRetry}
	_ = q.PublishProcessStatement(context.Background(), job)

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "document store unavailable" {
		t.Errorf("Error = %q", failed.Error)
	}

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("handler called %d times, want exactly 1", n)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishProcessStatement(context.Background(), &jobs.ProcessStatementJob{StatementID: "s1"}); err == nil {
		t.Error("publish on closed queue should fail")
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestQueue_RequiresStatement(t *testing.T) {
	q := NewQueue(1, 1, nil)
	defer q.Close()
	if err := q.PublishProcessStatement(context.Background(), &jobs.ProcessStatementJob{}); err == nil {
		t.Error("expected error for job without statement")
	}
}

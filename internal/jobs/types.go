package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobKind says why a statement is being processed.
type JobKind string

const (
	// JobKindProcess is the first run after upload.
	JobKindProcess JobKind = "process"
	// JobKindRetry is an explicit retry requested by a user.
	JobKindRetry JobKind = "retry"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the pipeline ran to a terminal statement
	// status, which may itself be failed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the run could not happen at all.
	JobStatusFailed JobStatus = "failed"
)

// ProcessStatementJob asks a worker to run the pipeline for one statement.
// Failed jobs are never re-enqueued; a new run needs an explicit retry.
type ProcessStatementJob struct {
	JobID       string  `json:"job_id"`
	StatementID string  `json:"statement_id"`
	Kind        JobKind `json:"kind"`

	Status JobStatus `json:"status"`
	// StatementStatus is the statement's status when the job finished.
	StatementStatus string `json:"statement_status,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishProcessStatement(ctx context.Context, job *ProcessStatementJob) error
	Close() error
}

// Consumer runs a handler for every job received.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It returns the resulting statement status, or
// an error when the run could not take place.
type JobHandler func(ctx context.Context, job *ProcessStatementJob) (string, error)

// JobStore keeps job state for the API.
type JobStore interface {
	SaveJob(ctx context.Context, job *ProcessStatementJob) error
	GetJob(ctx context.Context, jobID string) (*ProcessStatementJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessStatementJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	StatementID string
	Status      JobStatus
	Limit       int
	Offset      int
}

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

const pollBatch = 500

type statementLister interface {
	ListStatements(ctx context.Context, limit int) ([]*domain.Statement, error)
}

// poller turns pending statements, and statements orphaned in processing,
// into jobs. A statement is never enqueued twice while its job is open.
type poller struct {
	repo       statementLister
	publisher  jobs.Publisher
	handler    jobs.JobHandler
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	open    map[string]bool
	drained chan struct{}
}

func newPoller(repo statementLister, publisher jobs.Publisher, handler jobs.JobHandler, staleAfter time.Duration) *poller {
	return &poller{
		repo:       repo,
		publisher:  publisher,
		handler:    handler,
		staleAfter: staleAfter,
		now:        time.Now,
		open:       make(map[string]bool),
	}
}

// Poll enqueues every eligible statement and returns how many were enqueued.
func (p *poller) Poll(ctx context.Context) (int, error) {
	statements, err := p.repo.ListStatements(ctx, pollBatch)
	if err != nil {
		return 0, fmt.Errorf("Poll: listing statements: %w", err)
	}

	enqueued := 0
	for _, st := range statements {
		if !p.eligible(st) || !p.claim(st.ID) {
			continue
		}
		job := &jobs.ProcessStatementJob{StatementID: st.ID, Kind: jobs.JobKindProcess}
		if err := p.publisher.PublishProcessStatement(ctx, job); err != nil {
			p.release(st.ID)
			return enqueued, fmt.Errorf("Poll: enqueueing %s: %w", st.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}

func (p *poller) eligible(st *domain.Statement) bool {
	switch st.Status {
	case domain.StatusPending:
		return true
	case domain.StatusProcessing:
		return p.now().Sub(st.UpdatedAt) > p.staleAfter
	}
	return false
}

// Handle runs the job and then lets the statement be polled again.
func (p *poller) Handle(ctx context.Context, job *jobs.ProcessStatementJob) (string, error) {
	defer p.release(job.StatementID)
	return p.handler(ctx, job)
}

// Wait blocks until no job is open or ctx is done.
func (p *poller) Wait(ctx context.Context) {
	p.mu.Lock()
	if len(p.open) == 0 {
		p.mu.Unlock()
		return
	}
	if p.drained == nil {
		p.drained = make(chan struct{})
	}
	drained := p.drained
	p.mu.Unlock()

	select {
	case <-drained:
	case <-ctx.Done():
	}
}

func (p *poller) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open[id] {
		return false
	}
	p.open[id] = true
	return true
}

func (p *poller) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, id)
	if len(p.open) == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
}

// Package memory implements the persistence contracts in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// Repository keeps statements, transaction sets and run records.
type Repository struct {
	mu         sync.RWMutex
	statements map[string]*domain.Statement
	// sets holds every written batch, keyed by statement then run.
	sets map[string]map[string][]domain.Transaction
	runs []domain.RunRecord
}

func NewRepository() *Repository {
	return &Repository{
		statements: make(map[string]*domain.Statement),
		sets:       make(map[string]map[string][]domain.Transaction),
	}
}

func (r *Repository) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statements[id]
	if !ok {
		return nil, fmt.Errorf("GetStatement %s: %w", id, domain.ErrStatementNotFound)
	}
	return st.Clone(), nil
}

func (r *Repository) SaveStatement(ctx context.Context, st *domain.Statement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements[st.ID] = st.Clone()
	return nil
}

func (r *Repository) ListStatements(ctx context.Context, limit int) ([]*domain.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*domain.Statement, 0, len(r.statements))
	for _, st := range r.statements {
		out = append(out, st.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) FindStatementByChecksum(ctx context.Context, checksum string) (*domain.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Statement
	for _, st := range r.statements {
		if st.Source.ChecksumSHA256 != checksum {
			continue
		}
		if found == nil || st.CreatedAt.Before(found.CreatedAt) {
			found = st
		}
	}
	return found.Clone(), nil
}

func (r *Repository) ReplaceTransactions(ctx context.Context, statementID, runID string, txs []domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sets[statementID] == nil {
		r.sets[statementID] = make(map[string][]domain.Transaction)
	}
	r.sets[statementID][runID] = cloneTransactions(txs)
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, statementID string) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statements[statementID]
	if !ok {
		return nil, fmt.Errorf("ListTransactions %s: %w", statementID, domain.ErrStatementNotFound)
	}
	if st.ActiveRunID == "" {
		return []domain.Transaction{}, nil
	}
	return cloneTransactions(r.sets[statementID][st.ActiveRunID]), nil
}

func (r *Repository) PruneTransactions(ctx context.Context, statementID, keepRunID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for runID := range r.sets[statementID] {
		if runID != keepRunID {
			delete(r.sets[statementID], runID)
		}
	}
	return nil
}

// TransactionSets reports how many batches are stored for a statement.
func (r *Repository) TransactionSets(statementID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets[statementID])
}

// RecordRun keeps the run in memory.
func (r *Repository) RecordRun(ctx context.Context, run domain.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

// Runs returns the recorded runs of a statement in the order they finished.
func (r *Repository) Runs(statementID string) []domain.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RunRecord
	for _, run := range r.runs {
		if run.StatementID == statementID {
			out = append(out, run)
		}
	}
	return out
}

func cloneTransactions(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		tx.Warnings = append([]string(nil), tx.Warnings...)
		out[i] = tx
	}
	return out
}

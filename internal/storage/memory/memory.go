// Package memory is a process-local document store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/statement-pipeline/internal/storage"
)

const scheme = "mem"

// Store keeps documents in a map keyed by URI.
type Store struct {
	mu     sync.RWMutex
	bucket string
	docs   map[string][]byte
}

func New(bucket string) *Store {
	if bucket == "" {
		bucket = "local"
	}
	return &Store{bucket: bucket, docs: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, objectName string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	uri := fmt.Sprintf("%s://%s/%s", scheme, s.bucket, objectName)
	s.mu.Lock()
	s.docs[uri] = append([]byte(nil), data...)
	s.mu.Unlock()
	return uri, nil
}

func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("Store.Get: %s: %w", uri, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Package gcs stores uploaded statements in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	docstore "github.com/dvloznov/statement-pipeline/internal/storage"
)

const uploadTimeout = 2 * time.Minute

// Store reads and writes documents in a single bucket.
// It assumes Application Default Credentials are configured.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a Store with its own storage client.
func New(ctx context.Context, bucket string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs.New: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs.New: creating storage client: %w", err)
	}
	return NewWithClient(client, bucket), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Put uploads data under objectName and returns its gs:// URI.
func (s *Store) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Store.Put: writing %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Store.Put: finalizing upload %s: %w", objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Get downloads the object at a gs:// URI.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := docstore.ParseURI(uri, "gs")
	if err != nil {
		return nil, fmt.Errorf("Store.Get: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("Store.Get: %s: %w", uri, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Store.Get: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Store.Get: reading bytes: %w", err)
	}
	return data, nil
}

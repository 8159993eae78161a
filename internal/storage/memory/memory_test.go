package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/statement-pipeline/internal/storage"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New("docs")

	data := []byte("%PDF-1.4")
	uri, err := s.Put(ctx, storage.ObjectName("s1", "march.pdf"), data, "application/pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if uri != "mem://docs/statements/s1/march.pdf" {
		t.Errorf("uri = %q", uri)
	}

	data[0] = 'X'
	got, err := s.Get(ctx, uri)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "%PDF-1.4" {
		t.Errorf("stored bytes aliased caller slice: %q", got)
	}

	if _, err := s.Get(ctx, "mem://docs/missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

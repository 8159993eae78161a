package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

func TestCreateStatement(t *testing.T) {
	h := newHarness(t, setup{})
	ctx := context.Background()

	res, err := h.svc.CreateStatement(ctx, pipeline.UploadRequest{
		Filename: "april.png",
		BankName: " Barclays ",
		Currency: "gbp",
		Month:    4,
		Year:     2024,
		Data:     pngBytes,
	})
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	st := res.Statement
	if st.Status != domain.StatusPending || st.BankName != "Barclays" || st.Currency != "GBP" {
		t.Errorf("statement = %+v", st)
	}
	if st.Source.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want sniffed image/png", st.Source.MimeType)
	}
	if len(st.Source.ChecksumSHA256) != 64 {
		t.Errorf("checksum = %q", st.Source.ChecksumSHA256)
	}
	if !strings.HasSuffix(st.Source.Path, "/statements/"+st.ID+"/april.png") {
		t.Errorf("Path = %q", st.Source.Path)
	}
	if res.DuplicateOf != "" {
		t.Errorf("first upload reported as duplicate of %s", res.DuplicateOf)
	}

	again, err := h.svc.CreateStatement(ctx, pipeline.UploadRequest{Filename: "copy.png", Data: pngBytes})
	if err != nil {
		t.Fatal(err)
	}
	if again.DuplicateOf != st.ID {
		t.Errorf("DuplicateOf = %q, want %q", again.DuplicateOf, st.ID)
	}
	if again.Statement.ID == st.ID {
		t.Error("duplicate upload reused the statement id")
	}
}

func TestCreateStatement_Invalid(t *testing.T) {
	h := newHarness(t, setup{})
	tests := []struct {
		name string
		req  pipeline.UploadRequest
	}{
		{"empty document", pipeline.UploadRequest{Filename: "a.pdf"}},
		{"bad month", pipeline.UploadRequest{Filename: "a.pdf", Data: pngBytes, Month: 13}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.CreateStatement(context.Background(), tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestListStatements(t *testing.T) {
	h := newHarness(t, setup{})
	for i := 0; i < 3; i++ {
		h.create(t, append(append([]byte(nil), pngBytes...), byte(i)), "image/png")
	}
	list, err := h.svc.ListStatements(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("got %d statements, want 2", len(list))
	}

	if _, err := h.svc.ListTransactions(context.Background(), "missing"); err == nil {
		t.Error("ListTransactions on unknown statement should fail")
	}
}

func TestHandleJob(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(2))}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	st := h.create(t, pngBytes, "image/png")

	var handler jobs.JobHandler = h.svc.HandleJob
	for _, kind := range []jobs.JobKind{jobs.JobKindProcess, jobs.JobKindRetry} {
		status, err := handler(context.Background(), &jobs.ProcessStatementJob{StatementID: st.ID, Kind: kind})
		if err != nil || status != string(domain.StatusCompleted) {
			t.Errorf("%s: status %q, err %v", kind, status, err)
		}
	}

	if _, err := handler(context.Background(), &jobs.ProcessStatementJob{StatementID: "missing"}); err == nil {
		t.Error("unknown statement should fail the job")
	}
}

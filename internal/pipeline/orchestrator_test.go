package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dvloznov/statement-pipeline/internal/amount"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/extract"
	"github.com/dvloznov/statement-pipeline/internal/infra/memory"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
	"github.com/dvloznov/statement-pipeline/internal/parser"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
	"github.com/dvloznov/statement-pipeline/internal/statement"
	docmem "github.com/dvloznov/statement-pipeline/internal/storage/memory"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nscanned statement page")

// MockProvider is a test double for ocr.Provider.
type MockProvider struct {
	NameValue      string
	NotConfigured  bool
	TranscribeFunc func(ctx context.Context, data []byte, mimeType string) (*ocr.Result, error)
	calls          int32
}

func (m *MockProvider) Name() string     { return m.NameValue }
func (m *MockProvider) Configured() bool { return !m.NotConfigured }

func (m *MockProvider) Transcribe(ctx context.Context, data []byte, mimeType string) (*ocr.Result, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.TranscribeFunc(ctx, data, mimeType)
}

func (m *MockProvider) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

func transcribing(text string) func(context.Context, []byte, string) (*ocr.Result, error) {
	return func(context.Context, []byte, string) (*ocr.Result, error) {
		return &ocr.Result{Text: text}, nil
	}
}

// MockExtractor is a test double for pipeline.TextExtractor.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, data []byte, mimeType string) (*extract.Result, error)
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte, mimeType string) (*extract.Result, error) {
	return m.ExtractFunc(ctx, data, mimeType)
}

// MockNotifier is a test double for pipeline.Notifier.
type MockNotifier struct {
	EnqueueNotificationFunc func(ctx context.Context, n domain.Notification) error
}

func (m *MockNotifier) EnqueueNotification(ctx context.Context, n domain.Notification) error {
	return m.EnqueueNotificationFunc(ctx, n)
}

// failingRepository overrides transaction writes of the in-memory store.
type failingRepository struct {
	*memory.Repository
	ReplaceTransactionsFunc func(ctx context.Context, statementID, runID string, txs []domain.Transaction) error
}

func (r *failingRepository) ReplaceTransactions(ctx context.Context, statementID, runID string, txs []domain.Transaction) error {
	return r.ReplaceTransactionsFunc(ctx, statementID, runID, txs)
}

type setup struct {
	cfg             config.PipelineConfig
	extractor       pipeline.TextExtractor
	providers       []ocr.Provider
	providerTimeout time.Duration
	notifier        pipeline.Notifier
	wrap            func(*memory.Repository) pipeline.StatementRepository
}

type harness struct {
	svc      *pipeline.Service
	orch     *pipeline.Orchestrator
	repo     *memory.Repository
	notifier *memory.Notifier
}

func newHarness(t *testing.T, s setup) *harness {
	t.Helper()
	repo := memory.NewRepository()
	notifier := memory.NewNotifier()

	var r pipeline.StatementRepository = repo
	if s.wrap != nil {
		r = s.wrap(repo)
	}
	var n pipeline.Notifier = notifier
	if s.notifier != nil {
		n = s.notifier
	}
	if s.extractor == nil {
		s.extractor = extract.NewPDFTextExtractor(0)
	}
	if s.providerTimeout == 0 {
		s.providerTimeout = 5 * time.Second
	}
	if s.cfg.DefaultCurrency == "" {
		s.cfg.DefaultCurrency = "GBP"
	}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Repository: r,
		Extractor:  s.extractor,
		OCR:        ocr.NewChain(s.providerTimeout, 20, s.providers...),
		Parser:     parser.New(),
		Normalizer: amount.NewNormalizer(amount.DefaultPolicy()),
		Notifier:   n,
		Runs:       repo,
	}, s.cfg)
	svc := pipeline.NewService(docmem.New("test"), r, orch, "GBP")
	return &harness{svc: svc, orch: orch, repo: repo, notifier: notifier}
}

func (h *harness) create(t *testing.T, data []byte, mimeType string) *domain.Statement {
	t.Helper()
	res, err := h.svc.CreateStatement(context.Background(), pipeline.UploadRequest{
		Filename: "march.png",
		MimeType: mimeType,
		Month:    3,
		Year:     2024,
		Data:     data,
	})
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	return res.Statement
}

// scannedText renders n card payments on consecutive days of March 2024.
func scannedText(n int) string {
	var b strings.Builder
	b.WriteString("Statement of account\n")
	b.WriteString("Date Description Amount\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%02d/03/2024 CARD PAYMENT SHOP %d %d.50\n", i, i, 10+i)
	}
	return b.String()
}

func TestProcessStatement_ScannedImage(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(10))}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	st := h.create(t, pngBytes, "image/png")

	got, err := h.svc.Process(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s, errors %v", got.Status, got.ProcessingErrors)
	}
	if got.ExtractionMethod != "vision" || len(got.ProcessingErrors) != 0 {
		t.Errorf("ExtractionMethod = %q, ProcessingErrors = %v", got.ExtractionMethod, got.ProcessingErrors)
	}

	txs, err := h.svc.ListTransactions(context.Background(), st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 10 {
		t.Fatalf("got %d transactions, want 10", len(txs))
	}
	for i, tx := range txs {
		day := i + 1
		want := domain.Transaction{
			StatementID: st.ID,
			RunID:       got.ActiveRunID,
			Sequence:    i,
			Date:        time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
			Description: fmt.Sprintf("CARD PAYMENT SHOP %d", day),
			Amount:      -int64((10+day)*100 + 50),
			Currency:    "GBP",
			Direction:   domain.DirectionDebit,
		}
		opts := []cmp.Option{
			cmpopts.IgnoreFields(domain.Transaction{}, "ID", "OriginalAmount", "RawLine", "BalanceAfter", "Warnings"),
			cmpopts.EquateEmpty(),
		}
		if diff := cmp.Diff(want, tx, opts...); diff != "" {
			t.Errorf("transaction %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	notes := h.notifier.Notifications()
	if len(notes) != 1 || notes[0].Status != domain.StatusCompleted || notes[0].TransactionCount != 10 {
		t.Errorf("notifications = %+v", notes)
	}
	runs := h.repo.Runs(st.ID)
	if len(runs) != 1 || runs[0].Provider != "vision" || runs[0].Status != domain.StatusCompleted {
		t.Errorf("runs = %+v", runs)
	}
}

func TestProcessStatement_TextLayerSkipsOCR(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(3))}
	extractor := &MockExtractor{ExtractFunc: func(context.Context, []byte, string) (*extract.Result, error) {
		return &extract.Result{Text: scannedText(2), PageCount: 1}, nil
	}}
	h := newHarness(t, setup{extractor: extractor, providers: []ocr.Provider{vision}})
	st := h.create(t, []byte("%PDF-1.4 statement"), "application/pdf")

	got, err := h.svc.Process(context.Background(), st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted || got.ExtractionMethod != domain.ExtractionTextLayer {
		t.Errorf("got status %s via %q", got.Status, got.ExtractionMethod)
	}
	if vision.Calls() != 0 {
		t.Errorf("OCR called %d times despite a usable text layer", vision.Calls())
	}
	txs, _ := h.svc.ListTransactions(context.Background(), st.ID)
	if len(txs) != 2 {
		t.Errorf("got %d transactions, want 2", len(txs))
	}
	runs := h.repo.Runs(st.ID)
	if len(runs) != 1 || runs[0].Output == nil || runs[0].Output.Kind != domain.OutputPDFTextLayer {
		t.Errorf("runs = %+v", runs)
	}
}

func TestProcessStatement_NoUsableProvider(t *testing.T) {
	noText := &MockExtractor{ExtractFunc: func(context.Context, []byte, string) (*extract.Result, error) {
		return nil, nil
	}}
	classic := &MockProvider{NameValue: "classic", NotConfigured: true}
	h := newHarness(t, setup{extractor: noText, providers: []ocr.Provider{classic}})
	st := h.create(t, []byte("%PDF-1.4 scanned"), "application/pdf")

	got, err := h.svc.Process(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("pipeline failures must not be returned as errors: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if len(got.ProcessingErrors) != 1 || !strings.Contains(got.ProcessingErrors[0], "no usable OCR provider") {
		t.Errorf("ProcessingErrors = %v", got.ProcessingErrors)
	}
	notes := h.notifier.Notifications()
	if len(notes) != 1 || notes[0].Status != domain.StatusFailed {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestProcessStatement_AllProvidersFail(t *testing.T) {
	fail := func(kind ocr.Kind) func(context.Context, []byte, string) (*ocr.Result, error) {
		return func(context.Context, []byte, string) (*ocr.Result, error) {
			return nil, ocr.NewProviderError("mock", kind, errors.New("boom"))
		}
	}
	h := newHarness(t, setup{providers: []ocr.Provider{
		&MockProvider{NameValue: "vision", TranscribeFunc: fail(ocr.KindQuota)},
		&MockProvider{NameValue: "classic", TranscribeFunc: fail(ocr.KindFailed)},
	}})
	st := h.create(t, pngBytes, "image/png")

	got, _ := h.svc.Process(context.Background(), st.ID)
	if got.Status != domain.StatusFailed || len(got.ProcessingErrors) != 2 {
		t.Errorf("got %s with errors %v, want failed with one error per provider", got.Status, got.ProcessingErrors)
	}
}

func TestProcessStatement_FallbackRecordsWarning(t *testing.T) {
	h := newHarness(t, setup{providers: []ocr.Provider{
		&MockProvider{NameValue: "vision", TranscribeFunc: func(context.Context, []byte, string) (*ocr.Result, error) {
			return nil, ocr.NewProviderError("vision", ocr.KindAuth, errors.New("bad key"))
		}},
		&MockProvider{NameValue: "classic", TranscribeFunc: transcribing(scannedText(4))},
	}})
	st := h.create(t, pngBytes, "image/png")

	got, _ := h.svc.Process(context.Background(), st.ID)
	if got.Status != domain.StatusCompleted || got.ExtractionMethod != "classic" {
		t.Fatalf("got %s via %q", got.Status, got.ExtractionMethod)
	}
	if len(got.ProcessingWarnings) != 1 || !strings.Contains(got.ProcessingWarnings[0], "vision") {
		t.Errorf("ProcessingWarnings = %v", got.ProcessingWarnings)
	}
}

func TestProcessStatement_EmptyStatementPolicy(t *testing.T) {
	noise := "Statement of account\nPage 1 of 1\nThank you for banking with us, nothing to report this month"
	tests := []struct {
		policy     string
		wantStatus domain.StatementStatus
	}{
		{config.EmptyStatementFail, domain.StatusFailed},
		{config.EmptyStatementComplete, domain.StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(noise)}
			h := newHarness(t, setup{
				cfg:       config.PipelineConfig{EmptyStatementPolicy: tt.policy},
				providers: []ocr.Provider{vision},
			})
			st := h.create(t, pngBytes, "image/png")

			got, err := h.svc.Process(context.Background(), st.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.wantStatus {
				t.Fatalf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
			if !got.LowConfidence {
				t.Error("LowConfidence not set for zero candidates")
			}
			switch tt.wantStatus {
			case domain.StatusFailed:
				if len(got.ProcessingErrors) != 1 || got.ProcessingErrors[0] != "no transactions extracted" {
					t.Errorf("ProcessingErrors = %v", got.ProcessingErrors)
				}
			case domain.StatusCompleted:
				txs, _ := h.svc.ListTransactions(context.Background(), st.ID)
				if len(txs) != 0 || len(got.ProcessingErrors) != 0 {
					t.Errorf("got %d transactions, errors %v", len(txs), got.ProcessingErrors)
				}
			}
		})
	}
}

func TestRetry_IsIdempotent(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(5))}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	ctx := context.Background()

	res, err := h.svc.Upload(ctx, pipeline.UploadRequest{Filename: "a.png", Data: pngBytes, Month: 3, Year: 2024})
	if err != nil {
		t.Fatal(err)
	}
	first, _ := h.svc.ListTransactions(ctx, res.Statement.ID)

	again, err := h.svc.Retry(ctx, res.Statement.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := h.svc.ListTransactions(ctx, res.Statement.ID)

	if again.ActiveRunID == res.Statement.ActiveRunID {
		t.Error("retry did not switch to a new run")
	}
	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(domain.Transaction{}, "ID", "RunID")); diff != "" {
		t.Errorf("retry changed the transaction set (-first +second):\n%s", diff)
	}
	if n := h.repo.TransactionSets(res.Statement.ID); n != 1 {
		t.Errorf("superseded sets not pruned: %d sets stored", n)
	}
}

func TestRetry_AfterFailureClearsErrors(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: func(context.Context, []byte, string) (*ocr.Result, error) {
		if broken.Load() {
			return nil, ocr.NewProviderError("vision", ocr.KindUnavailable, errors.New("503"))
		}
		return &ocr.Result{Text: scannedText(3)}, nil
	}}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	st := h.create(t, pngBytes, "image/png")

	failed, _ := h.svc.Process(context.Background(), st.ID)
	if failed.Status != domain.StatusFailed {
		t.Fatalf("first run status = %s", failed.Status)
	}

	broken.Store(false)
	got, err := h.svc.Retry(context.Background(), st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted || len(got.ProcessingErrors) != 0 {
		t.Errorf("retry: %s with errors %v", got.Status, got.ProcessingErrors)
	}
	if runs := h.repo.Runs(st.ID); len(runs) != 2 {
		t.Errorf("recorded %d runs, want 2", len(runs))
	}
}

func TestProcessStatement_ConcurrentRunsWait(t *testing.T) {
	var active, maxActive int32
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: func(context.Context, []byte, string) (*ocr.Result, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return &ocr.Result{Text: scannedText(2)}, nil
	}}
	h := newHarness(t, setup{
		cfg:       config.PipelineConfig{ConcurrentRunPolicy: config.ConcurrentRunWait},
		providers: []ocr.Provider{vision},
	})
	st := h.create(t, pngBytes, "image/png")

	var wg sync.WaitGroup
	results := make([]*domain.Statement, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := h.svc.Retry(context.Background(), st.ID)
			if err != nil {
				t.Errorf("Retry %d: %v", i, err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("runs overlapped: %d concurrent", maxActive)
	}
	if vision.Calls() != 2 {
		t.Errorf("provider called %d times, want 2", vision.Calls())
	}
	for i, got := range results {
		if got != nil && got.Status != domain.StatusCompleted {
			t.Errorf("run %d ended %s", i, got.Status)
		}
	}
	if n := h.repo.TransactionSets(st.ID); n != 1 {
		t.Errorf("%d transaction sets stored, want 1", n)
	}
}

func TestProcessStatement_ConcurrentRunsReject(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: func(context.Context, []byte, string) (*ocr.Result, error) {
		close(started)
		<-release
		return &ocr.Result{Text: scannedText(2)}, nil
	}}
	h := newHarness(t, setup{
		cfg:       config.PipelineConfig{ConcurrentRunPolicy: config.ConcurrentRunReject},
		providers: []ocr.Provider{vision},
	})
	st := h.create(t, pngBytes, "image/png")

	done := make(chan *domain.Statement)
	go func() {
		got, _ := h.svc.Process(context.Background(), st.ID)
		done <- got
	}()
	<-started

	_, err := h.svc.Retry(context.Background(), st.ID)
	if !errors.Is(err, statement.ErrStatementBusy) {
		t.Errorf("second run err = %v, want ErrStatementBusy", err)
	}

	close(release)
	if got := <-done; got == nil || got.Status != domain.StatusCompleted {
		t.Errorf("first run = %+v", got)
	}
	if vision.Calls() != 1 {
		t.Errorf("provider called %d times, want 1", vision.Calls())
	}
}

func TestProcessStatement_Cancellation(t *testing.T) {
	tests := []struct {
		name       string
		timeout    time.Duration
		cancel     bool
		wantReason string
	}{
		{"pipeline timeout", 50 * time.Millisecond, false, "cancelled: pipeline timeout after 50ms"},
		{"caller cancelled", 0, true, "cancelled: context canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			stuck := &MockProvider{NameValue: "vision", TranscribeFunc: func(ctx context.Context, _ []byte, _ string) (*ocr.Result, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}}
			h := newHarness(t, setup{
				cfg:             config.PipelineConfig{Timeout: tt.timeout},
				providers:       []ocr.Provider{stuck},
				providerTimeout: time.Minute,
			})
			st := h.create(t, pngBytes, "image/png")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				go func() {
					<-started
					cancel()
				}()
			}

			got, err := h.svc.Process(ctx, st.ID)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if got.Status != domain.StatusFailed {
				t.Fatalf("Status = %s, want failed", got.Status)
			}
			if len(got.ProcessingErrors) != 1 || got.ProcessingErrors[0] != tt.wantReason {
				t.Errorf("ProcessingErrors = %v, want [%s]", got.ProcessingErrors, tt.wantReason)
			}

			stored, _ := h.repo.GetStatement(context.Background(), st.ID)
			if stored.Status != domain.StatusFailed {
				t.Errorf("stored status = %s, statement left behind", stored.Status)
			}
		})
	}
}

func TestProcessStatement_RecoversOrphan(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(2))}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	st := h.create(t, pngBytes, "image/png")

	orphan, _ := h.repo.GetStatement(context.Background(), st.ID)
	orphan.Status = domain.StatusProcessing
	_ = h.repo.SaveStatement(context.Background(), orphan)

	got, err := h.svc.Process(context.Background(), st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
}

func TestProcessStatement_NotFound(t *testing.T) {
	h := newHarness(t, setup{})
	_, err := h.orch.ProcessStatement(context.Background(), "missing", pngBytes, "image/png")
	if !errors.Is(err, pipeline.ErrStatementNotFound) {
		t.Errorf("err = %v, want ErrStatementNotFound", err)
	}
}

func TestProcessStatement_PersistenceFailure(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(2))}
	h := newHarness(t, setup{
		providers: []ocr.Provider{vision},
		wrap: func(r *memory.Repository) pipeline.StatementRepository {
			return &failingRepository{
				Repository: r,
				ReplaceTransactionsFunc: func(context.Context, string, string, []domain.Transaction) error {
					return errors.New("quota exceeded")
				},
			}
		},
	})
	st := h.create(t, pngBytes, "image/png")

	got, err := h.svc.Process(context.Background(), st.ID)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if got == nil || got.Status != domain.StatusFailed {
		t.Fatalf("statement = %+v", got)
	}
	if !strings.HasPrefix(got.ProcessingErrors[0], "persisting transactions") {
		t.Errorf("ProcessingErrors = %v", got.ProcessingErrors)
	}
}

func TestProcessStatement_NotificationFailureIsIgnored(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(2))}
	h := newHarness(t, setup{
		providers: []ocr.Provider{vision},
		notifier: &MockNotifier{EnqueueNotificationFunc: func(context.Context, domain.Notification) error {
			return errors.New("outbox unavailable")
		}},
	})
	st := h.create(t, pngBytes, "image/png")

	got, err := h.svc.Process(context.Background(), st.ID)
	if err != nil || got.Status != domain.StatusCompleted {
		t.Errorf("got %v, %v; notification failure must not change the outcome", got, err)
	}
}

func TestProcessStatement_FlagsScaleErrors(t *testing.T) {
	text := scannedText(5) + "06/03/2024 CARD PAYMENT GARAGE 450,000.00\n"
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(text)}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	st := h.create(t, pngBytes, "image/png")

	got, _ := h.svc.Process(context.Background(), st.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s", got.Status)
	}
	txs, _ := h.svc.ListTransactions(context.Background(), st.ID)
	last := txs[len(txs)-1]
	if !last.Flagged || last.OriginalAmount != -45_000_000 {
		t.Errorf("last transaction = %+v, want flagged original -45000000", last)
	}
	if len(got.ProcessingWarnings) == 0 {
		t.Error("flagged line missing from statement warnings")
	}
	if notes := h.notifier.Notifications(); len(notes) != 1 || notes[0].FlaggedCount != 1 {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestRetry_FailureDropsPreviousSet(t *testing.T) {
	var broken atomic.Bool
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: func(context.Context, []byte, string) (*ocr.Result, error) {
		if broken.Load() {
			return nil, ocr.NewProviderError("vision", ocr.KindUnavailable, errors.New("503"))
		}
		return &ocr.Result{Text: scannedText(3)}, nil
	}}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	ctx := context.Background()
	st := h.create(t, pngBytes, "image/png")

	done, err := h.svc.Process(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if txs, _ := h.svc.ListTransactions(ctx, st.ID); done.Status != domain.StatusCompleted || len(txs) != 3 {
		t.Fatalf("first run: %s with %d transactions", done.Status, len(txs))
	}

	broken.Store(true)
	got, err := h.svc.Retry(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("retry status = %s, want failed", got.Status)
	}
	if got.ActiveRunID != "" {
		t.Errorf("ActiveRunID = %q, want none after a failed retry", got.ActiveRunID)
	}
	txs, err := h.svc.ListTransactions(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Errorf("failed retry still exposes %d transactions", len(txs))
	}
	if n := h.repo.TransactionSets(st.ID); n != 0 {
		t.Errorf("%d transaction sets kept after a failed retry", n)
	}
}

func TestProcessStatement_DocumentUnreadable(t *testing.T) {
	vision := &MockProvider{NameValue: "vision", TranscribeFunc: transcribing(scannedText(3))}
	h := newHarness(t, setup{providers: []ocr.Provider{vision}})
	st := h.create(t, []byte("%PDF-1.4 truncated garbage"), "application/pdf")

	got, err := h.svc.Process(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("pipeline failures must not be returned as errors: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if len(got.ProcessingErrors) != 1 || !strings.Contains(got.ProcessingErrors[0], "document unreadable") {
		t.Errorf("ProcessingErrors = %v", got.ProcessingErrors)
	}
	if vision.Calls() != 0 {
		t.Errorf("OCR called %d times for an unreadable document", vision.Calls())
	}
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/api/middleware"
	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/jobs"
	"github.com/dvloznov/statement-pipeline/internal/pipeline"
)

// StatementService is the part of pipeline.Service the API uses.
type StatementService interface {
	CreateStatement(ctx context.Context, req pipeline.UploadRequest) (*pipeline.UploadResult, error)
	GetStatement(ctx context.Context, id string) (*domain.Statement, error)
	ListStatements(ctx context.Context, limit int) ([]*domain.Statement, error)
	ListTransactions(ctx context.Context, id string) ([]domain.Transaction, error)
}

// StatementsHandler handles statement-related endpoints.
type StatementsHandler struct {
	svc            StatementService
	publisher      jobs.Publisher
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(svc StatementService, publisher jobs.Publisher, maxUploadBytes int64, log zerolog.Logger) *StatementsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &StatementsHandler{
		svc:            svc,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// UploadStatement handles POST /api/statements
// The body is multipart/form-data with the document in "file" and optional
// bank_name, account_ref, currency, month and year fields.
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Document too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	month, err := optionalInt(r.FormValue("month"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid month")
		return
	}
	year, err := optionalInt(r.FormValue("year"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid year")
		return
	}

	res, err := h.svc.CreateStatement(ctx, pipeline.UploadRequest{
		Filename:   header.Filename,
		MimeType:   header.Header.Get("Content-Type"),
		BankName:   r.FormValue("bank_name"),
		AccountRef: r.FormValue("account_ref"),
		Currency:   r.FormValue("currency"),
		Month:      month,
		Year:       year,
		Data:       data,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create statement")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to create statement")
		return
	}

	job := &jobs.ProcessStatementJob{StatementID: res.Statement.ID, Kind: jobs.JobKindProcess}
	if err := h.publisher.PublishProcessStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("statement_id", res.Statement.ID).Msg("Failed to enqueue processing job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Statement stored but processing could not be enqueued")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("statement_id", res.Statement.ID).Msg("Processing job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"statement":    res.Statement,
		"duplicate_of": res.DuplicateOf,
		"job_id":       job.JobID,
	})
}

// ListStatements handles GET /api/statements
func (h *StatementsHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	statements, err := h.svc.ListStatements(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}
	if statements == nil {
		statements = []*domain.Statement{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": statements,
		"count":      len(statements),
	})
}

// GetStatement handles GET /api/statements/{id}
func (h *StatementsHandler) GetStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	st, err := h.svc.GetStatement(r.Context(), statementID)
	if err != nil {
		h.writeLookupError(w, err, statementID)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

// ListTransactions handles GET /api/statements/{id}/transactions
func (h *StatementsHandler) ListTransactions(w http.ResponseWriter, r *http.Request, statementID string) {
	txs, err := h.svc.ListTransactions(r.Context(), statementID)
	if err != nil {
		h.writeLookupError(w, err, statementID)
		return
	}

	// Return array directly for frontend compatibility
	if txs == nil {
		txs = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, txs)
}

// RetryStatement handles POST /api/statements/{id}/retry
func (h *StatementsHandler) RetryStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()

	if _, err := h.svc.GetStatement(ctx, statementID); err != nil {
		h.writeLookupError(w, err, statementID)
		return
	}

	job := &jobs.ProcessStatementJob{StatementID: statementID, Kind: jobs.JobKindRetry}
	if err := h.publisher.PublishProcessStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to enqueue retry job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue retry job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("statement_id", statementID).Msg("Retry job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":       job.JobID,
		"statement_id": statementID,
		"status":       string(jobs.JobStatusPending),
	})
}

func (h *StatementsHandler) writeLookupError(w http.ResponseWriter, err error, statementID string) {
	if errors.Is(err, domain.ErrStatementNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Statement not found")
		return
	}
	h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to load statement")
	middleware.WriteError(w, http.StatusInternalServerError, "Failed to load statement")
}

func optionalInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		StatementID: query.Get("statement_id"),
		Status:      jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

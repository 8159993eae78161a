// Package api wires the HTTP handlers behind the middleware stack.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/api/handlers"
	"github.com/dvloznov/statement-pipeline/internal/api/middleware"
)

// NewRouter registers every endpoint and applies Recovery, RequestID,
// Logger, CORS and Auth, outermost first.
func NewRouter(statements *handlers.StatementsHandler, jobsHandler *handlers.JobsHandler, authToken string, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Statements endpoints
	mux.HandleFunc("POST /api/statements", statements.UploadStatement)
	mux.HandleFunc("GET /api/statements", statements.ListStatements)
	mux.HandleFunc("GET /api/statements/{id}", func(w http.ResponseWriter, r *http.Request) {
		statements.GetStatement(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/statements/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		statements.ListTransactions(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/statements/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		statements.RetryStatement(w, r, r.PathValue("id"))
	})

	// Jobs endpoints
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		jobsHandler.GetJob(w, r, r.PathValue("id"))
	})

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(authToken)(mux),
				),
			),
		),
	)
}

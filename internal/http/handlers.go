package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gofinances/internal/csvsource"
	"gofinances/internal/log"
	"gofinances/internal/services"
)

const defaultMaxUploadBytes = 10 << 20

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports ready once the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.svc.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["storage"] = "failed"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.Balance(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newBalanceResponse(balance))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	transactions, balance, err := s.svc.ListTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newListResponse(transactions, balance))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	candidate, err := parseCandidate(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Malformed JSON body.", "")
		return
	}

	t, err := s.svc.CreateTransaction(r.Context(), candidate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportTransactions admits the rows of an uploaded CSV file. The
// response is 201 when at least one row was stored and 200 otherwise.
func (s *Server) handleImportTransactions(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, err := openUpload(r, maxBytes)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, r, http.StatusRequestEntityTooLarge, "File too large.", "")
		case errors.Is(err, errMissingFile):
			writeError(w, r, http.StatusBadRequest, "Missing file.", "")
		case errors.Is(err, errFileType):
			writeError(w, r, http.StatusBadRequest, "Invalid file type.", "")
		default:
			writeError(w, r, http.StatusBadRequest, "Malformed upload.", "")
		}
		return
	}
	defer func() { _ = file.Close() }()

	var opts []csvsource.Option
	if s.cfg.MaxImportRows > 0 {
		opts = append(opts, csvsource.WithMaxRows(s.cfg.MaxImportRows))
	}
	report, err := s.svc.ImportTransactions(r.Context(), csvsource.NewReader(file, opts...))
	if err != nil {
		switch {
		case errors.Is(err, csvsource.ErrTooManyRows):
			writeError(w, r, http.StatusRequestEntityTooLarge, "Too many rows.", "")
		case errors.Is(err, services.ErrUnreadableImport):
			writeError(w, r, http.StatusBadRequest, "Unreadable CSV file.", "")
		default:
			writeImportError(w, r, err, report)
		}
		return
	}

	status := http.StatusOK
	if report.Accepted > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, newImportResponse(report))
}

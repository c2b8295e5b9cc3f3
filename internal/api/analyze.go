package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/report"
	"github.com/kalambet/bloodlens/internal/role"
	"github.com/kalambet/bloodlens/internal/storage"
	"github.com/kalambet/bloodlens/internal/taskgraph"
)

const (
	defaultMaxUploadBytes = 10 << 20
	// multipartOverhead is the slack allowed on top of the file limit for
	// the other form fields and part headers.
	multipartOverhead = 64 << 10
)

// Analyzer runs one analysis request.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request) (report.Report, error)
}

type Deps struct {
	Analyzer Analyzer
	// Store is optional; without it reports are not kept and the history
	// endpoints answer 404.
	Store *storage.Store
	// Token protects the history endpoints when non-empty.
	Token          string
	MaxUploadBytes int64
	// Provider is the reasoning backend name reported by /health.
	Provider string
	Version  string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}

	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/", handleRoot(deps))
	r.Get("/health", handleHealth(deps))
	r.Post("/analyze", handleAnalyze(deps))

	r.Route("/reports", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/", handleListReports(deps))
		r.Get("/{id}", handleGetReport(deps))
		r.Delete("/{id}", handleDeleteReport(deps))
	})

	return r
}

// requestID tags each request with an X-Request-ID, reusing the client's
// when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Blood Test Report Analyser API is running",
			"version": deps.Version,
		})
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Service       string          `json:"service"`
	Provider      string          `json:"provider,omitempty"`
	Roles         []string        `json:"roles"`
	AnalysisTypes []analysis.Mode `json:"analysis_types"`
	History       bool            `json:"history"`
	Reports       int             `json:"reports,omitempty"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        "healthy",
			Service:       "bloodlens",
			Provider:      deps.Provider,
			Roles:         lo.Map(role.All(), func(r role.Role, _ int) string { return r.Title }),
			AnalysisTypes: analysis.Modes(),
			History:       deps.Store != nil,
		}
		if deps.Store != nil {
			if n, err := deps.Store.CountReports(); err == nil {
				resp.Reports = n
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+multipartOverhead)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", deps.MaxUploadBytes)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, deps.MaxUploadBytes+1))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}

		doc := analysis.Document{Name: filepath.Base(header.Filename), Data: data}
		req := analysis.NewRequest(doc, r.FormValue("query"), r.FormValue("analysis_type"))
		status, body := analyze(r.Context(), deps, req)
		writeJSON(w, status, body)
	}
}

// analyze validates req, runs it and stores the result. It returns the
// HTTP status and the body to send. Shared with the MCP tool.
func analyze(ctx context.Context, deps Deps, req analysis.Request) (int, any) {
	if len(req.Document.Data) == 0 {
		return http.StatusBadRequest, errorBody("invalid_request_error", "uploaded file is empty")
	}
	if int64(len(req.Document.Data)) > deps.MaxUploadBytes {
		return http.StatusRequestEntityTooLarge, errorBody("invalid_request_error", fmt.Sprintf("file exceeds %d bytes", deps.MaxUploadBytes))
	}

	rep, err := deps.Analyzer.Run(ctx, req)
	switch {
	case errors.Is(err, taskgraph.ErrUnknownMode):
		return http.StatusBadRequest, errorBody("invalid_request_error", fmt.Sprintf("invalid analysis_type %q; valid: %v", req.Mode, analysis.Modes()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorBody("api_error", "analysis cancelled")
	case err != nil:
		slog.Error("analysis failed", "error", err)
		return http.StatusInternalServerError, errorBody("api_error", fmt.Sprintf("analysis failed: %v", err))
	}

	if deps.Store != nil {
		if err := deps.Store.SaveReport(rep); err != nil {
			slog.Warn("failed to store report", "id", rep.ID, "error", err)
		}
	}

	if rep.Error == analysis.KindUnreadableDocument {
		return http.StatusUnprocessableEntity, rep
	}
	return http.StatusOK, rep
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "encoding response: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func errorBody(errType, msg string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody(errType, fmt.Sprintf(format, args...)))
}

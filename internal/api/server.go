package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"job-forensics/internal/config"
	"job-forensics/internal/forensics"
	"job-forensics/internal/models"
	"job-forensics/internal/ratelimit"
	"job-forensics/internal/telemetry"
)

// ForensicsEngine is the read-only surface the HTTP layer exposes.
type ForensicsEngine interface {
	GetJobForensics(ctx context.Context, jobID string, opts forensics.Options) (*models.ForensicsReport, error)
	GetFailedJobsForAnalysis(ctx context.Context, limit int) ([]models.FailedJobAnalysis, error)
}

// Server wires HTTP handlers for the forensics read API.
type Server struct {
	cfg     config.Config
	engine  ForensicsEngine
	limiter *ratelimit.TokenBucket
}

// New constructs the API server.
func New(cfg config.Config, engine ForensicsEngine, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		limiter: limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/jobs/{id}/forensics", s.handleForensics)
	r.Get("/analysis/failed-jobs", s.handleFailedJobs)
	return r
}

func (s *Server) handleForensics(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	opts := forensics.Options{
		IncludeHistory:             boolParam(r, "include_history", false),
		IncludeCrossSystemRefs:     boolParam(r, "include_refs", true),
		IncludeRecoverySuggestions: boolParam(r, "include_suggestions", true),
		VerifyAssets:               boolParam(r, "verify_assets", false),
		MaxSimilarFailures:         intParam(r, "max_similar", s.cfg.MaxSimilarFailures),
	}

	report, err := s.engine.GetJobForensics(r.Context(), jobID, opts)
	if errors.Is(err, forensics.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if errors.Is(err, forensics.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "job state unavailable")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "forensics failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFailedJobs(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	limit := intParam(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	analyses, err := s.engine.GetFailedJobsForAnalysis(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed-job analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": analyses, "count": len(analyses)})
}

// admit applies per-tenant rate limiting before any scan work starts.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.Allow(r.Context(), tenantFromRequest(r))
	if err != nil {
		// Limiter trouble should not take the read path down.
		return true
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return false
	}
	return true
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func boolParam(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

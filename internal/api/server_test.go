package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"job-forensics/internal/config"
	"job-forensics/internal/forensics"
	"job-forensics/internal/models"
)

type fakeEngine struct {
	report   *models.ForensicsReport
	err      error
	lastOpts forensics.Options
	analyses []models.FailedJobAnalysis
}

func (f *fakeEngine) GetJobForensics(ctx context.Context, jobID string, opts forensics.Options) (*models.ForensicsReport, error) {
	f.lastOpts = opts
	return f.report, f.err
}

func (f *fakeEngine) GetFailedJobsForAnalysis(ctx context.Context, limit int) ([]models.FailedJobAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.analyses) {
		return f.analyses[:limit], nil
	}
	return f.analyses, nil
}

func newTestServer(engine ForensicsEngine) *Server {
	cfg := config.Config{MaxSimilarFailures: 10}
	return New(cfg, engine, nil)
}

func TestHandleForensics_OK(t *testing.T) {
	engine := &fakeEngine{
		report: &models.ForensicsReport{
			ReportID: "r1",
			Job:      models.CanonicalJob{ID: "j1", Status: models.StatusCompleted},
		},
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/forensics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got models.ForensicsReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Job.ID != "j1" {
		t.Fatalf("bad report: %+v", got)
	}
	// Option defaults: refs and suggestions on, history and assets off.
	if !engine.lastOpts.IncludeCrossSystemRefs || !engine.lastOpts.IncludeRecoverySuggestions {
		t.Fatalf("default include options wrong: %+v", engine.lastOpts)
	}
	if engine.lastOpts.IncludeHistory || engine.lastOpts.VerifyAssets {
		t.Fatalf("expensive options should default off: %+v", engine.lastOpts)
	}
	if engine.lastOpts.MaxSimilarFailures != 10 {
		t.Fatalf("expected configured similar-failure cap, got %d", engine.lastOpts.MaxSimilarFailures)
	}
}

func TestHandleForensics_QueryOptions(t *testing.T) {
	engine := &fakeEngine{report: &models.ForensicsReport{}}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/forensics?include_history=true&verify_assets=true&max_similar=3&include_suggestions=false", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	opts := engine.lastOpts
	if !opts.IncludeHistory || !opts.VerifyAssets || opts.IncludeRecoverySuggestions || opts.MaxSimilarFailures != 3 {
		t.Fatalf("query options not applied: %+v", opts)
	}
}

func TestHandleForensics_NotFound(t *testing.T) {
	srv := newTestServer(&fakeEngine{err: forensics.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing/forensics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleForensics_Unavailable(t *testing.T) {
	srv := newTestServer(&fakeEngine{err: forensics.ErrUnavailable})

	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/forensics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleFailedJobs(t *testing.T) {
	engine := &fakeEngine{
		analyses: []models.FailedJobAnalysis{
			{JobID: "j1"}, {JobID: "j2"}, {JobID: "j3"},
		},
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodGet, "/analysis/failed-jobs?limit=2", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Items []models.FailedJobAnalysis `json:"items"`
		Count int                        `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 2 || len(body.Items) != 2 {
		t.Fatalf("limit not applied: %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

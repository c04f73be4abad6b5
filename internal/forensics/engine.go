package forensics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"job-forensics/internal/faststore"
	"job-forensics/internal/logging"
	"job-forensics/internal/models"
	"job-forensics/internal/telemetry"
)

// ErrNotFound means the job is absent from both stores.
var ErrNotFound = errors.New("job not found in any store")

// ErrUnavailable means neither store produced a record but at least one read
// degraded, so absence cannot be asserted.
var ErrUnavailable = errors.New("job state unavailable: source reads degraded")

// FastReader is the live-state side of the engine. Implemented by
// faststore.Reader; faked in tests.
type FastReader interface {
	ReadJob(ctx context.Context, jobID string) (*models.FastJob, error)
	FindAttestations(ctx context.Context, jobID, workflowID string) (faststore.AttestationScan, error)
	ReadRetryBackups(ctx context.Context, jobID string) ([]models.RetrySnapshot, error)
	SimilarFailures(ctx context.Context, category, excludeJobID string, max int) ([]models.SimilarFailure, error)
}

// RelationalReader is the durable side. Implemented by relstore.Reader.
type RelationalReader interface {
	ReadJob(ctx context.Context, jobID string) (*models.RelationalJob, error)
	CrossSystemRefs(ctx context.Context, jobID, workflowID string) ([]models.CrossSystemReference, error)
	JobHistory(ctx context.Context, jobID string, limit int) ([]models.JobHistoryEntry, error)
	ListFailedJobs(ctx context.Context, limit int) ([]string, error)
}

// AssetChecker probes attested asset locations. May be nil when no object
// store is configured.
type AssetChecker interface {
	Check(ctx context.Context, locations []string) []models.AssetCheck
}

// Options selects optional report facets.
type Options struct {
	IncludeHistory             bool
	IncludeCrossSystemRefs     bool
	IncludeRecoverySuggestions bool
	VerifyAssets               bool
	MaxSimilarFailures         int
}

// Timeouts bound each class of external call. Exceeding a budget degrades
// the corresponding facet; it never fails the request.
type Timeouts struct {
	Read     time.Duration
	Scan     time.Duration
	BatchJob time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read <= 0 {
		t.Read = 2 * time.Second
	}
	if t.Scan <= 0 {
		t.Scan = 3 * time.Second
	}
	if t.BatchJob <= 0 {
		t.BatchJob = 5 * time.Second
	}
	return t
}

// Engine reconciles job state across both stores and derives the forensics
// report. Stateless per request; store clients are injected and owned by the
// host process.
type Engine struct {
	fast     FastReader
	rel      RelationalReader
	assets   AssetChecker
	timeouts Timeouts
	logger   *slog.Logger
}

// NewEngine wires the engine with its two source readers and an optional
// asset checker.
func NewEngine(fast FastReader, rel RelationalReader, assets AssetChecker, timeouts Timeouts) *Engine {
	return &Engine{
		fast:     fast,
		rel:      rel,
		assets:   assets,
		timeouts: timeouts.withDefaults(),
		logger:   logging.WithModule("forensics"),
	}
}

// GetJobForensics builds the full report for one job. Returns ErrNotFound
// when the job is absent from both stores; every other degradation surfaces
// as a partial report, never as a failure.
func (e *Engine) GetJobForensics(ctx context.Context, jobID string, opts Options) (*models.ForensicsReport, error) {
	start := time.Now()
	telemetry.ForensicsRequests.Inc()

	report := &models.ForensicsReport{
		ReportID:    uuid.New().String(),
		GeneratedAt: start.UTC(),
		Facets: models.FacetAvailability{
			FastStore:       true,
			Relational:      true,
			Attestations:    true,
			Timeline:        true,
			Consistency:     true,
			RetryHistory:    true,
			History:         true,
			SimilarFailures: true,
			Assets:          true,
		},
	}

	// The two source reads are independent; run them concurrently.
	var (
		wg      sync.WaitGroup
		fastJob *models.FastJob
		relJob  *models.RelationalJob
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		readCtx, cancel := context.WithTimeout(ctx, e.timeouts.Read)
		defer cancel()
		job, err := e.fast.ReadJob(readCtx, jobID)
		if err != nil {
			e.degrade(report, "fast_store", jobID, err)
			report.Facets.FastStore = false
			return
		}
		fastJob = job
	}()
	go func() {
		defer wg.Done()
		readCtx, cancel := context.WithTimeout(ctx, e.timeouts.Read)
		defer cancel()
		job, err := e.rel.ReadJob(readCtx, jobID)
		if err != nil {
			e.degrade(report, "relational", jobID, err)
			report.Facets.Relational = false
			return
		}
		relJob = job
	}()
	wg.Wait()

	job := Merge(fastJob, relJob)
	if job == nil {
		if !report.Facets.FastStore || !report.Facets.Relational {
			return nil, ErrUnavailable
		}
		telemetry.ForensicsNotFound.Inc()
		return nil, ErrNotFound
	}
	report.Job = *job

	workflowID := ""
	if job.WorkflowID != nil {
		workflowID = *job.WorkflowID
	}

	// Pure derivations need no IO.
	report.Timeline = BuildTimeline(job)
	if job.LastError != nil {
		report.ErrorCategory = CategorizeError(*job.LastError)
	}

	// The remaining facets are independent of each other; fan out.
	var refs []models.CrossSystemReference
	wg.Add(3)
	go func() {
		defer wg.Done()
		scanCtx, cancel := context.WithTimeout(ctx, e.timeouts.Scan)
		defer cancel()
		scan, err := e.fast.FindAttestations(scanCtx, jobID, workflowID)
		if err != nil {
			e.degrade(report, "attestations", jobID, err)
			report.Facets.Attestations = false
			return
		}
		report.Attestations = scan.Attestations
		report.AttestationGroups = GroupWorkerAttestations(scan.Attestations)
		if scan.Skipped > 0 || scan.Truncated {
			report.Facets.Attestations = false
		}
		if opts.VerifyAssets && e.assets != nil {
			report.AssetChecks = e.assets.Check(scanCtx, attestedLocations(scan.Attestations))
			for _, check := range report.AssetChecks {
				if check.Exists == nil {
					report.Facets.Assets = false
					break
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		readCtx, cancel := context.WithTimeout(ctx, e.timeouts.Read)
		defer cancel()
		history, err := e.fast.ReadRetryBackups(readCtx, jobID)
		if err != nil {
			e.degrade(report, "retry_history", jobID, err)
			report.Facets.RetryHistory = false
			return
		}
		report.Retries = AnalyzeRetries(job, history)
	}()
	go func() {
		defer wg.Done()
		readCtx, cancel := context.WithTimeout(ctx, e.timeouts.Read)
		defer cancel()
		if opts.IncludeCrossSystemRefs {
			got, err := e.rel.CrossSystemRefs(readCtx, jobID, workflowID)
			if err != nil {
				e.degrade(report, "consistency", jobID, err)
				report.Facets.Consistency = false
			} else {
				refs = got
			}
		}
		if opts.IncludeHistory {
			entries, err := e.rel.JobHistory(readCtx, jobID, 100)
			if err != nil {
				e.degrade(report, "history", jobID, err)
				report.Facets.History = false
			} else {
				report.History = entries
			}
		}
	}()
	wg.Wait()

	report.CrossSystemRefs = refs
	report.Consistency = CheckConsistency(job, refs)

	if max := opts.MaxSimilarFailures; max > 0 && report.ErrorCategory != "" && report.ErrorCategory != models.ErrCategoryUnknown {
		readCtx, cancel := context.WithTimeout(ctx, e.timeouts.Read)
		similar, err := e.fast.SimilarFailures(readCtx, report.ErrorCategory, jobID, max)
		cancel()
		if err != nil {
			e.degrade(report, "similar_failures", jobID, err)
			report.Facets.SimilarFailures = false
		} else {
			report.SimilarFailures = similar
		}
	}

	if opts.IncludeRecoverySuggestions {
		report.Suggestions = GenerateSuggestions(job, report.ErrorCategory, report.Consistency)
	}

	report.Partial = anyDegraded(report.Facets)
	if report.Partial {
		telemetry.PartialReports.Inc()
	}
	telemetry.RequestDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// GetFailedJobsForAnalysis runs the forensics pipeline over recently failed
// jobs for aggregate pattern reporting. Each job gets its own timeout; one
// slow or broken job never poisons the batch.
func (e *Engine) GetFailedJobsForAnalysis(ctx context.Context, limit int) ([]models.FailedJobAnalysis, error) {
	listCtx, cancel := context.WithTimeout(ctx, e.timeouts.Read)
	ids, err := e.rel.ListFailedJobs(listCtx, limit)
	cancel()
	if err != nil {
		return nil, err
	}

	opts := Options{
		IncludeCrossSystemRefs:     true,
		IncludeRecoverySuggestions: true,
	}
	out := make([]models.FailedJobAnalysis, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		jobCtx, cancel := context.WithTimeout(ctx, e.timeouts.BatchJob)
		report, err := e.GetJobForensics(jobCtx, id, opts)
		cancel()
		entry := models.FailedJobAnalysis{JobID: id}
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Report = report
		}
		out = append(out, entry)
	}
	return out, nil
}

func (e *Engine) degrade(report *models.ForensicsReport, facet, jobID string, err error) {
	telemetry.FacetDegraded.WithLabelValues(facet).Inc()
	e.logger.Warn("facet degraded", "facet", facet, "job_id", jobID, "error", err)
}

// attestedLocations collects every asset location claimed by any attestation,
// first-seen order, deduplicated.
func attestedLocations(atts []models.Attestation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range atts {
		for _, loc := range append(append([]string{}, a.AssetURLs...), a.AssetLocations...) {
			if loc == "" {
				continue
			}
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			out = append(out, loc)
		}
	}
	return out
}

func anyDegraded(f models.FacetAvailability) bool {
	return !f.FastStore || !f.Relational || !f.Attestations || !f.Timeline ||
		!f.Consistency || !f.RetryHistory || !f.History || !f.SimilarFailures || !f.Assets
}

package faststore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"job-forensics/internal/logging"
	"job-forensics/internal/models"
	"job-forensics/internal/telemetry"
)

// Reader provides read-only, typed access to live job state in Redis.
// The client is injected; its lifecycle belongs to the host process.
type Reader struct {
	client      *redis.Client
	scanMaxKeys int
	logger      *slog.Logger
}

// NewReader wraps an existing Redis client. scanMaxKeys bounds the total
// number of attestation keys examined per request.
func NewReader(client *redis.Client, scanMaxKeys int) *Reader {
	if scanMaxKeys <= 0 {
		scanMaxKeys = 500
	}
	return &Reader{
		client:      client,
		scanMaxKeys: scanMaxKeys,
		logger:      logging.WithModule("faststore"),
	}
}

func jobKey(jobID string) string {
	return "job:" + jobID
}

func retryBackupGlob(jobID string) string {
	return fmt.Sprintf("retry-backup:%s:*", jobID)
}

func errorIndexKey(category string) string {
	return "errors:index:" + category
}

// ReadJob fetches and decodes the job hash. A missing record returns
// (nil, nil); a malformed record returns an error so the caller can degrade
// the facet instead of merging garbage.
func (r *Reader) ReadJob(ctx context.Context, jobID string) (*models.FastJob, error) {
	fields, err := r.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job hash %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	job, err := decodeJobHash(jobID, fields)
	if err != nil {
		return nil, fmt.Errorf("decode job hash %s: %w", jobID, err)
	}
	return job, nil
}

func decodeJobHash(jobID string, fields map[string]string) (*models.FastJob, error) {
	status, ok := fields["status"]
	if !ok || status == "" {
		return nil, fmt.Errorf("missing status field")
	}

	job := &models.FastJob{ID: jobID, Status: status}

	var err error
	if job.Priority, err = intField(fields, "priority"); err != nil {
		return nil, err
	}
	if job.RetryCount, err = intField(fields, "retry_count"); err != nil {
		return nil, err
	}
	if job.MaxRetries, err = intField(fields, "max_retries"); err != nil {
		return nil, err
	}

	job.WorkerID = strField(fields, "worker_id")
	job.LastFailedWorker = strField(fields, "last_failed_worker")
	job.WorkflowID = strField(fields, "workflow_id")
	job.LastError = strField(fields, "last_error")

	if raw, ok := fields["payload"]; ok && raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("payload is not valid json")
		}
		job.Payload = json.RawMessage(raw)
	}

	for name, dst := range map[string]**time.Time{
		"created_at":   &job.CreatedAt,
		"assigned_at":  &job.AssignedAt,
		"started_at":   &job.StartedAt,
		"completed_at": &job.CompletedAt,
		"failed_at":    &job.FailedAt,
	} {
		t, err := timeField(fields, name)
		if err != nil {
			return nil, err
		}
		*dst = t
	}
	return job, nil
}

func strField(fields map[string]string, name string) *string {
	if v, ok := fields[name]; ok && v != "" {
		return &v
	}
	return nil
}

func intField(fields map[string]string, name string) (int, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return n, nil
}

// timeField accepts RFC3339 strings (current writers) and unix-millisecond
// integers (legacy writers).
func timeField(fields map[string]string, name string) (*time.Time, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("field %s: unparseable timestamp %q", name, v)
}

// AttestationScan is the bounded result of a pattern scan. Skipped counts
// keys that existed but could not be fetched or parsed; Truncated reports
// that the per-request key cap cut the scan short. Either condition makes
// the facet partial, not failed.
type AttestationScan struct {
	Attestations []models.Attestation
	KeysScanned  int
	Skipped      int
	Truncated    bool
}

// FindAttestations walks the ordered pattern table and recovers every proof
// record it can. Per-key failures are skipped and counted; only context
// cancellation aborts the scan.
func (r *Reader) FindAttestations(ctx context.Context, jobID, workflowID string) (AttestationScan, error) {
	var scan AttestationScan
	budget := r.scanMaxKeys

	for _, pat := range Patterns() {
		if pat.NeedsWorkflow && workflowID == "" {
			continue
		}
		if budget <= 0 {
			scan.Truncated = true
			telemetry.ScanCapHits.Inc()
			break
		}

		glob := pat.Glob(jobID, workflowID)
		keys, truncated, err := r.enumerateKeys(ctx, glob, budget)
		if err != nil {
			if ctx.Err() != nil {
				return scan, ctx.Err()
			}
			r.logger.Warn("pattern enumeration failed", "pattern", pat.Name, "job_id", jobID, "error", err)
			scan.Skipped++
			continue
		}
		if truncated {
			scan.Truncated = true
			telemetry.ScanCapHits.Inc()
		}
		budget -= len(keys)
		scan.KeysScanned += len(keys)
		telemetry.KeysScanned.Add(float64(len(keys)))

		for _, key := range keys {
			raw, err := r.client.Get(ctx, key).Result()
			if err == redis.Nil {
				continue // expired between SCAN and GET
			}
			if err != nil {
				if ctx.Err() != nil {
					return scan, ctx.Err()
				}
				r.logger.Warn("attestation fetch failed", "key", key, "error", err)
				scan.Skipped++
				continue
			}
			att, err := parseAttestation(pat, key, raw)
			if err != nil {
				r.logger.Warn("attestation parse failed", "key", key, "error", err)
				scan.Skipped++
				continue
			}
			scan.Attestations = append(scan.Attestations, att)
		}
	}

	sort.SliceStable(scan.Attestations, func(i, j int) bool {
		return scan.Attestations[i].BestTimestamp().Before(scan.Attestations[j].BestTimestamp())
	})
	return scan, nil
}

// enumerateKeys resolves a pattern to concrete keys. Exact patterns (no glob
// metacharacter) check existence directly and never cost a SCAN.
func (r *Reader) enumerateKeys(ctx context.Context, glob string, budget int) ([]string, bool, error) {
	if !strings.ContainsAny(glob, "*?[") {
		n, err := r.client.Exists(ctx, glob).Result()
		if err != nil {
			return nil, false, err
		}
		if n == 0 {
			return nil, false, nil
		}
		return []string{glob}, false, nil
	}

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, glob, 100).Result()
		if err != nil {
			return nil, false, err
		}
		keys = append(keys, batch...)
		if len(keys) >= budget {
			return keys[:budget], len(keys) > budget || next != 0, nil
		}
		cursor = next
		if cursor == 0 {
			return keys, false, nil
		}
	}
}

// wireAttestation tolerates every historical field spelling across eras.
type wireAttestation struct {
	Timestamp   *flexTime       `json:"timestamp"`
	FailedAt    *flexTime       `json:"failed_at"`
	CompletedAt *flexTime       `json:"completed_at"`
	RetryCount  int             `json:"retry_count"`
	Step        *int            `json:"step"`
	CurrentStep *int            `json:"current_step"`
	MachineID   string          `json:"machine_id"`
	Result      json.RawMessage `json:"result"`
	AssetURLs   []string        `json:"asset_urls"`
	Error       string          `json:"error"`

	AssetLocations []string `json:"asset_locations"`
	APIInstance    string   `json:"api_instance"`
	APIVersion     string   `json:"api_version"`

	Delivered *bool  `json:"delivered"`
	Method    string `json:"method"`
	Content   string `json:"content"`
}

// flexTime decodes RFC3339 strings or unix-millisecond numbers.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		f.Time = t.UTC()
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func parseAttestation(pat Pattern, key, raw string) (models.Attestation, error) {
	var wire wireAttestation
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return models.Attestation{}, err
	}

	att := models.Attestation{
		Kind:           pat.Kind,
		Key:            key,
		Pattern:        pat.Name,
		RetryCount:     wire.RetryCount,
		MachineID:      wire.MachineID,
		Result:         wire.Result,
		AssetURLs:      wire.AssetURLs,
		Error:          wire.Error,
		AssetLocations: wire.AssetLocations,
		APIInstance:    wire.APIInstance,
		APIVersion:     wire.APIVersion,
		Delivered:      wire.Delivered,
		Method:         wire.Method,
		Content:        wire.Content,
	}

	switch {
	case wire.Step != nil:
		att.Step = *wire.Step
	case wire.CurrentStep != nil:
		att.Step = *wire.CurrentStep
	case pat.StepFromKey:
		parts := strings.Split(key, ":")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			att.Step = n
		}
	}

	// Best available timestamp: explicit, else failure time, else completion.
	switch {
	case wire.Timestamp != nil && !wire.Timestamp.IsZero():
		t := wire.Timestamp.Time
		att.Timestamp = &t
	case wire.FailedAt != nil && !wire.FailedAt.IsZero():
		t := wire.FailedAt.Time
		att.Timestamp = &t
	case wire.CompletedAt != nil && !wire.CompletedAt.IsZero():
		t := wire.CompletedAt.Time
		att.Timestamp = &t
	}
	return att, nil
}

// ReadRetryBackups returns the pre-retry state snapshots recorded for a job,
// ordered by attempt. Nil history means the job never backed up a retry.
func (r *Reader) ReadRetryBackups(ctx context.Context, jobID string) ([]models.RetrySnapshot, error) {
	keys, _, err := r.enumerateKeys(ctx, retryBackupGlob(jobID), r.scanMaxKeys)
	if err != nil {
		return nil, fmt.Errorf("scan retry backups %s: %w", jobID, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	snaps := make([]models.RetrySnapshot, 0, len(keys))
	for _, key := range keys {
		raw, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read retry backup %s: %w", key, err)
		}
		var snap models.RetrySnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			r.logger.Warn("retry backup parse failed", "key", key, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].Attempt != snaps[j].Attempt {
			return snaps[i].Attempt < snaps[j].Attempt
		}
		return snaps[i].RetriedAt.Before(snaps[j].RetriedAt)
	})
	return snaps, nil
}

// SimilarFailures reads the error-signature index maintained by the write
// path. Absent index means the facet is simply unavailable; no keyspace scan
// is ever attempted here.
func (r *Reader) SimilarFailures(ctx context.Context, category, excludeJobID string, max int) ([]models.SimilarFailure, error) {
	if max <= 0 {
		return nil, nil
	}
	ids, err := r.client.SMembers(ctx, errorIndexKey(category)).Result()
	if err != nil {
		return nil, fmt.Errorf("read error index %s: %w", category, err)
	}
	sort.Strings(ids)

	out := make([]models.SimilarFailure, 0, max)
	for _, id := range ids {
		if id == excludeJobID {
			continue
		}
		out = append(out, models.SimilarFailure{JobID: id, Category: category})
		if len(out) == max {
			break
		}
	}
	return out, nil
}

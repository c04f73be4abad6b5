package faststore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"job-forensics/internal/models"
)

func newTestReader(t *testing.T, scanMaxKeys int) (*Reader, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReader(client, scanMaxKeys), mr
}

func TestReadJob_Missing(t *testing.T) {
	r, _ := newTestReader(t, 100)

	job, err := r.ReadJob(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %+v", job)
	}
}

func TestReadJob_TypedDecode(t *testing.T) {
	r, mr := newTestReader(t, 100)

	mr.HSet("job:j1",
		"status", "failed",
		"priority", "7",
		"retry_count", "2",
		"max_retries", "3",
		"worker_id", "worker-4",
		"workflow_id", "wf-1",
		"last_error", "connection timeout",
		"payload", `{"prompt":"cat"}`,
		"created_at", "2025-06-01T10:00:00Z",
		"failed_at", "1748772600000", // legacy unix-millis writer
	)

	job, err := r.ReadJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("read job: %v", err)
	}
	if job == nil {
		t.Fatal("expected job")
	}
	if job.Status != "failed" || job.Priority != 7 || job.RetryCount != 2 || job.MaxRetries != 3 {
		t.Fatalf("bad scalar decode: %+v", job)
	}
	if job.WorkerID == nil || *job.WorkerID != "worker-4" {
		t.Fatalf("bad worker_id: %v", job.WorkerID)
	}
	if job.CreatedAt == nil || !job.CreatedAt.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("bad created_at: %v", job.CreatedAt)
	}
	if job.FailedAt == nil || job.FailedAt.IsZero() {
		t.Fatalf("millis timestamp not decoded: %v", job.FailedAt)
	}
	if string(job.Payload) != `{"prompt":"cat"}` {
		t.Fatalf("bad payload: %s", job.Payload)
	}
}

func TestReadJob_MalformedFieldFailsRead(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.HSet("job:j1", "status", "queued", "retry_count", "two")

	if _, err := r.ReadJob(context.Background(), "j1"); err == nil {
		t.Fatal("expected decode error for malformed retry_count")
	}
}

func TestReadJob_MissingStatusIsMalformed(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.HSet("job:j1", "priority", "1")

	if _, err := r.ReadJob(context.Background(), "j1"); err == nil {
		t.Fatal("expected error for hash without status")
	}
}

func TestFindAttestations_AcrossEras(t *testing.T) {
	r, mr := newTestReader(t, 100)
	ctx := context.Background()

	mr.Set("worker:completion:j1:1", `{"retry_count":0,"step":1,"machine_id":"gpu-a","completed_at":"2025-06-01T10:01:00Z"}`)
	mr.Set("worker:failure:j1:2", `{"retry_count":0,"step":2,"error":"oom","failed_at":"2025-06-01T10:02:00Z"}`)
	mr.Set("job:failure:j1", `{"retry_count":1,"error":"timeout","timestamp":"2025-06-01T10:05:00Z"}`)
	mr.Set("workflow:wf-1:job:j1:api-completion", `{"asset_locations":["s3://bucket/out.png"],"api_instance":"api-2","timestamp":"2025-06-01T10:06:00Z"}`)
	mr.Set("notification:j1:email", `{"delivered":true,"method":"email","timestamp":"2025-06-01T10:07:00Z"}`)
	// Key for a different job must not leak in.
	mr.Set("worker:completion:j2:1", `{"retry_count":0,"step":1}`)

	scan, err := r.FindAttestations(ctx, "j1", "wf-1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Attestations) != 5 {
		t.Fatalf("expected 5 attestations, got %d: %+v", len(scan.Attestations), scan.Attestations)
	}
	if scan.Skipped != 0 || scan.Truncated {
		t.Fatalf("unexpected partial state: %+v", scan)
	}

	// Sorted ascending by best timestamp.
	for i := 1; i < len(scan.Attestations); i++ {
		if scan.Attestations[i].BestTimestamp().Before(scan.Attestations[i-1].BestTimestamp()) {
			t.Fatalf("attestations not sorted at %d", i)
		}
	}

	byPattern := make(map[string]models.Attestation)
	for _, a := range scan.Attestations {
		byPattern[a.Pattern] = a
	}
	if got := byPattern["worker-completion-v2"]; got.Kind != models.AttestWorkerCompletion || got.Step != 1 || got.MachineID != "gpu-a" {
		t.Fatalf("bad v2 completion: %+v", got)
	}
	if got := byPattern["job-failure-v1"]; got.Kind != models.AttestWorkerFailure || got.RetryCount != 1 {
		t.Fatalf("bad legacy failure: %+v", got)
	}
	if got := byPattern["workflow-api-completion-v1"]; got.Kind != models.AttestAPICompletion || len(got.AssetLocations) != 1 {
		t.Fatalf("bad workflow api completion: %+v", got)
	}
	if got := byPattern["notification-v2"]; got.Delivered == nil || !*got.Delivered || got.Method != "email" {
		t.Fatalf("bad notification: %+v", got)
	}
}

func TestFindAttestations_WorkflowPatternsSkippedWithoutWorkflow(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.Set("workflow:wf-1:job:j1:api-completion", `{"timestamp":"2025-06-01T10:00:00Z"}`)

	scan, err := r.FindAttestations(context.Background(), "j1", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Attestations) != 0 {
		t.Fatalf("workflow-keyed record matched without workflow id: %+v", scan.Attestations)
	}
}

func TestFindAttestations_MalformedValueSkipped(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.Set("worker:completion:j1:1", `{"retry_count":0,"step":1,"completed_at":"2025-06-01T10:00:00Z"}`)
	mr.Set("worker:completion:j1:2", `not json at all`)

	scan, err := r.FindAttestations(context.Background(), "j1", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Attestations) != 1 {
		t.Fatalf("expected 1 good attestation, got %d", len(scan.Attestations))
	}
	if scan.Skipped != 1 {
		t.Fatalf("expected 1 skipped key, got %d", scan.Skipped)
	}
}

func TestFindAttestations_StepRecoveredFromKey(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.Set("worker:completion:j1:4", `{"retry_count":0,"completed_at":"2025-06-01T10:00:00Z"}`)

	scan, err := r.FindAttestations(context.Background(), "j1", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Attestations) != 1 || scan.Attestations[0].Step != 4 {
		t.Fatalf("step not recovered from key: %+v", scan.Attestations)
	}
}

func TestFindAttestations_ScanCapTruncates(t *testing.T) {
	r, mr := newTestReader(t, 3)
	for i := 0; i < 10; i++ {
		mr.Set("notification:j1:"+string(rune('a'+i)), `{"delivered":false,"method":"webhook"}`)
	}

	scan, err := r.FindAttestations(context.Background(), "j1", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !scan.Truncated {
		t.Fatal("expected truncated scan")
	}
	if scan.KeysScanned > 3 {
		t.Fatalf("cap not honored: scanned %d", scan.KeysScanned)
	}
}

func TestReadRetryBackups(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.Set("retry-backup:j1:1", `{"attempt":1,"status":"failed","retried_at":"2025-06-01T10:01:00Z"}`)
	mr.Set("retry-backup:j1:0", `{"attempt":0,"status":"failed","retried_at":"2025-06-01T10:00:00Z"}`)

	snaps, err := r.ReadRetryBackups(context.Background(), "j1")
	if err != nil {
		t.Fatalf("read backups: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Attempt != 0 || snaps[1].Attempt != 1 {
		t.Fatalf("snapshots not ordered by attempt: %+v", snaps)
	}
}

func TestReadRetryBackups_NoHistory(t *testing.T) {
	r, _ := newTestReader(t, 100)

	snaps, err := r.ReadRetryBackups(context.Background(), "j1")
	if err != nil {
		t.Fatalf("read backups: %v", err)
	}
	if snaps != nil {
		t.Fatalf("expected nil history, got %+v", snaps)
	}
}

func TestSimilarFailures(t *testing.T) {
	r, mr := newTestReader(t, 100)
	mr.SAdd("errors:index:timeout", "j1", "j2", "j3", "j4")

	got, err := r.SimilarFailures(context.Background(), "timeout", "j1", 2)
	if err != nil {
		t.Fatalf("similar failures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("cap not honored: %+v", got)
	}
	for _, s := range got {
		if s.JobID == "j1" {
			t.Fatal("excluded job id leaked into results")
		}
		if s.Category != "timeout" {
			t.Fatalf("bad category: %+v", s)
		}
	}
}

func TestSimilarFailures_NoIndex(t *testing.T) {
	r, _ := newTestReader(t, 100)

	got, err := r.SimilarFailures(context.Background(), "network", "j1", 5)
	if err != nil {
		t.Fatalf("similar failures: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result for absent index, got %+v", got)
	}
}

package relstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"job-forensics/internal/logging"
	"job-forensics/internal/models"
)

// Reader provides read-only access to the durable job/business tables.
type Reader struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Reader, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Reader{pool: pool, logger: logging.WithModule("relstore")}, nil
}

func (r *Reader) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// ReadJob fetches the durable job row plus best-effort business joins.
// A missing row returns (nil, nil). A failed join degrades that facet to nil
// without failing the primary read.
func (r *Reader) ReadJob(ctx context.Context, jobID string) (*models.RelationalJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, status, priority, retry_count, max_retries, worker_id, last_failed_worker,
		       workflow_id, payload, last_error, created_at, assigned_at, started_at, completed_at, failed_at
		FROM jobs WHERE id = $1
	`, jobID)

	var (
		job                   models.RelationalJob
		payloadJSON           []byte
		workerID, lastFailed  pgtype.Text
		workflowID, lastError pgtype.Text
		created, assigned     pgtype.Timestamptz
		started, completed    pgtype.Timestamptz
		failed                pgtype.Timestamptz
	)
	err := row.Scan(&job.ID, &job.Status, &job.Priority, &job.RetryCount, &job.MaxRetries,
		&workerID, &lastFailed, &workflowID, &payloadJSON, &lastError,
		&created, &assigned, &started, &completed, &failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job %s: %w", jobID, err)
	}

	job.WorkerID = textPtr(workerID)
	job.LastFailedWorker = textPtr(lastFailed)
	job.WorkflowID = textPtr(workflowID)
	job.LastError = textPtr(lastError)
	job.CreatedAt = tsPtr(created)
	job.AssignedAt = tsPtr(assigned)
	job.StartedAt = tsPtr(started)
	job.CompletedAt = tsPtr(completed)
	job.FailedAt = tsPtr(failed)
	if len(payloadJSON) > 0 && json.Valid(payloadJSON) {
		job.Payload = json.RawMessage(payloadJSON)
	}

	// Business facets degrade independently.
	if job.WorkflowID != nil {
		if wf, err := r.readWorkflow(ctx, *job.WorkflowID); err != nil {
			r.logger.Warn("workflow join degraded", "job_id", jobID, "error", err)
		} else {
			job.Workflow = wf
		}
		if col, err := r.readCollection(ctx, *job.WorkflowID); err != nil {
			r.logger.Warn("collection join degraded", "job_id", jobID, "error", err)
		} else {
			job.Collection = col
		}
	}
	if files, err := r.readGeneratedFiles(ctx, jobID); err != nil {
		r.logger.Warn("generated-file join degraded", "job_id", jobID, "error", err)
	} else {
		job.Files = files
	}
	if miniapp, err := r.readMiniApp(ctx, jobID); err != nil {
		r.logger.Warn("mini-app join degraded", "job_id", jobID, "error", err)
	} else {
		job.MiniApp = miniapp
	}

	return &job, nil
}

func (r *Reader) readWorkflow(ctx context.Context, workflowID string) (*models.WorkflowInfo, error) {
	var wf models.WorkflowInfo
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, status FROM workflows WHERE id = $1
	`, workflowID).Scan(&wf.ID, &wf.Name, &wf.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *Reader) readCollection(ctx context.Context, workflowID string) (*models.CollectionInfo, error) {
	var col models.CollectionInfo
	err := r.pool.QueryRow(ctx, `
		SELECT id, title FROM collections WHERE workflow_id = $1
	`, workflowID).Scan(&col.ID, &col.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &col, nil
}

func (r *Reader) readGeneratedFiles(ctx context.Context, jobID string) ([]models.GeneratedFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, location, COALESCE(mime_type, '') FROM mini_app_generations
		WHERE job_id = $1 ORDER BY id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.GeneratedFile
	for rows.Next() {
		var f models.GeneratedFile
		if err := rows.Scan(&f.ID, &f.Location, &f.MimeType); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *Reader) readMiniApp(ctx context.Context, jobID string) (*models.MiniAppContext, error) {
	var (
		info        models.MiniAppContext
		paymentID   pgtype.Text
		payStatus   pgtype.Text
		amountCents pgtype.Int8
		username    pgtype.Text
	)
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.status, p.amount_cents, u.id, u.username
		FROM mini_app_payments p
		JOIN mini_app_users u ON u.id = p.user_id
		WHERE p.job_id = $1
		ORDER BY p.created_at DESC
		LIMIT 1
	`, jobID).Scan(&paymentID, &payStatus, &amountCents, &info.UserID, &username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.Username = valueOr(username)
	info.PaymentID = textPtr(paymentID)
	info.PaymentStatus = textPtr(payStatus)
	if amountCents.Valid {
		info.AmountCents = &amountCents.Int64
	}
	return &info, nil
}

// CrossSystemRefs gathers pointers into the business API and mini-app
// subsystems, each with its own reported status. Absence of rows is an empty
// slice, not an error.
func (r *Reader) CrossSystemRefs(ctx context.Context, jobID, workflowID string) ([]models.CrossSystemReference, error) {
	var refs []models.CrossSystemReference

	if workflowID != "" {
		var id, status string
		err := r.pool.QueryRow(ctx, `
			SELECT id, status FROM workflows WHERE id = $1
		`, workflowID).Scan(&id, &status)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("workflow ref: %w", err)
		}
		if err == nil {
			refs = append(refs, models.CrossSystemReference{
				System:       "workflow_api",
				RefID:        id,
				RawStatus:    status,
				MappedStatus: models.MapReferenceStatus(status),
			})
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, status FROM mini_app_payments WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("mini-app refs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan mini-app ref: %w", err)
		}
		refs = append(refs, models.CrossSystemReference{
			System:       "mini_app",
			RefID:        id,
			RawStatus:    status,
			MappedStatus: models.MapReferenceStatus(status),
		})
	}
	return refs, rows.Err()
}

// JobHistory returns the durable audit trail for a job, oldest first.
func (r *Reader) JobHistory(ctx context.Context, jobID string, limit int) ([]models.JobHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT event, COALESCE(detail, ''), recorded_at FROM job_history
		WHERE job_id = $1 ORDER BY recorded_at ASC LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var entries []models.JobHistoryEntry
	for rows.Next() {
		var e models.JobHistoryEntry
		if err := rows.Scan(&e.Event, &e.Detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListFailedJobs returns ids of recently failed jobs, newest failure first.
func (r *Reader) ListFailedJobs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM jobs WHERE status = $1
		ORDER BY failed_at DESC NULLS LAST LIMIT $2
	`, models.StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid && t.String != "" {
		return &t.String
	}
	return nil
}

func tsPtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time.UTC()
		return &v
	}
	return nil
}

func valueOr(t pgtype.Text) string {
	if t.Valid {
		return t.String
	}
	return ""
}

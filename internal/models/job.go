package models

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates lifecycle states observed in either backing store.
const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusAssigned   = "assigned"
	StatusAccepted   = "accepted"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusTimeout    = "timeout"
	StatusUnworkable = "unworkable"
)

// TerminalStatus reports whether a status marks the end of a job's lifecycle.
func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout, StatusUnworkable:
		return true
	}
	return false
}

// FastJob is the typed decode of a Redis job hash. It reflects only the
// currently-executing lifecycle; the record may be evicted once a job ages out.
type FastJob struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Priority         int             `json:"priority"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	WorkerID         *string         `json:"worker_id,omitempty"`
	LastFailedWorker *string         `json:"last_failed_worker,omitempty"`
	WorkflowID       *string         `json:"workflow_id,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	LastError        *string         `json:"last_error,omitempty"`
	CreatedAt        *time.Time      `json:"created_at,omitempty"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
}

// RelationalJob is the durable Postgres view of a job plus whatever business
// facets the best-effort joins recovered. Any facet may be nil without the
// primary read having failed.
type RelationalJob struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Priority         int             `json:"priority"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	WorkerID         *string         `json:"worker_id,omitempty"`
	LastFailedWorker *string         `json:"last_failed_worker,omitempty"`
	WorkflowID       *string         `json:"workflow_id,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	LastError        *string         `json:"last_error,omitempty"`
	CreatedAt        *time.Time      `json:"created_at,omitempty"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`

	Workflow   *WorkflowInfo   `json:"workflow,omitempty"`
	Collection *CollectionInfo `json:"collection,omitempty"`
	Files      []GeneratedFile `json:"generated_files,omitempty"`
	MiniApp    *MiniAppContext `json:"miniapp,omitempty"`
}

// WorkflowInfo links a job to the workflow that produced it.
type WorkflowInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// CollectionInfo is the business collection a job's output belongs to.
type CollectionInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GeneratedFile references an output asset recorded by the business layer.
type GeneratedFile struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	MimeType string `json:"mime_type,omitempty"`
}

// MiniAppContext carries mini-app user and payment context joined from the
// relational store.
type MiniAppContext struct {
	UserID        string  `json:"user_id"`
	Username      string  `json:"username,omitempty"`
	PaymentID     *string `json:"payment_id,omitempty"`
	PaymentStatus *string `json:"payment_status,omitempty"`
	AmountCents   *int64  `json:"amount_cents,omitempty"`
}

// StatusSources records what each store reported before merge precedence was
// applied, so the precedence decision stays auditable on the report.
type StatusSources struct {
	FastStore  *string `json:"fast_store,omitempty"`
	Relational *string `json:"relational,omitempty"`
}

// CanonicalJob is the single merged view used by every downstream derivation.
// Fast-store fields win where both stores carry a value; status always comes
// from the fast store when a fast record exists.
type CanonicalJob struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Priority         int             `json:"priority"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	WorkerID         *string         `json:"worker_id,omitempty"`
	LastFailedWorker *string         `json:"last_failed_worker,omitempty"`
	WorkflowID       *string         `json:"workflow_id,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	LastError        *string         `json:"last_error,omitempty"`
	CreatedAt        *time.Time      `json:"created_at,omitempty"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`

	Workflow   *WorkflowInfo   `json:"workflow,omitempty"`
	Collection *CollectionInfo `json:"collection,omitempty"`
	Files      []GeneratedFile `json:"generated_files,omitempty"`
	MiniApp    *MiniAppContext `json:"miniapp,omitempty"`

	StatusSources StatusSources `json:"status_sources"`
}

// RetrySnapshot is one pre-retry state backup captured by the execution plane
// before a job was re-enqueued.
type RetrySnapshot struct {
	Attempt   int             `json:"attempt"`
	Status    string          `json:"status"`
	WorkerID  *string         `json:"worker_id,omitempty"`
	Error     *string         `json:"error,omitempty"`
	RetriedAt time.Time       `json:"retried_at"`
	State     json.RawMessage `json:"state,omitempty"`
}

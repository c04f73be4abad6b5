package models

import (
	"time"
)

// ErrorCategory values produced by the classifier.
const (
	ErrCategoryTimeout     = "timeout"
	ErrCategoryNetwork     = "network"
	ErrCategoryValidation  = "validation"
	ErrCategoryResource    = "resource"
	ErrCategoryExternalAPI = "external_api"
	ErrCategoryUnknown     = "unknown"
)

// Mapped statuses reported by cross-system references.
const (
	RefStatusActive    = "active"
	RefStatusCompleted = "completed"
	RefStatusFailed    = "failed"
	RefStatusUnknown   = "unknown"
)

// CrossSystemReference asserts that another subsystem holds a record for this
// job or its workflow, with its own independently-reported status.
type CrossSystemReference struct {
	System       string `json:"system"`
	RefID        string `json:"ref_id"`
	RawStatus    string `json:"raw_status"`
	MappedStatus string `json:"mapped_status"`
}

// MapReferenceStatus folds a foreign subsystem's status vocabulary into the
// four-value reference status set.
func MapReferenceStatus(raw string) string {
	switch raw {
	case "active", "running", "processing", "in_progress", "pending", "queued":
		return RefStatusActive
	case "completed", "complete", "succeeded", "success", "done", "paid":
		return RefStatusCompleted
	case "failed", "failure", "error", "errored", "refunded":
		return RefStatusFailed
	default:
		return RefStatusUnknown
	}
}

// JobHistoryEntry is one durable audit row from the relational store.
type JobHistoryEntry struct {
	Event      string    `json:"event"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LifecycleEvent kinds, in canonical lifecycle order.
const (
	EventCreated   = "created"
	EventAssigned  = "assigned"
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// LifecycleEvent is one derived point on a job's timeline.
type LifecycleEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
}

// ConsistencyReport captures cross-system status agreement for one job.
type ConsistencyReport struct {
	DataAvailable       bool                   `json:"data_available"`
	DiscrepancyDetected bool                   `json:"discrepancy_detected"`
	PrioritySource      string                 `json:"priority_source"`
	CanonicalStatus     string                 `json:"canonical_status"`
	Disagreements       []CrossSystemReference `json:"disagreements,omitempty"`
}

// Retry cadence patterns.
const (
	RetryPatternEscalating = "escalating"
	RetryPatternConsistent = "consistent"
	RetryPatternRandom     = "random"
)

// RetryAnalysis describes retry cadence derived from pre-retry state backups.
// SuccessEstimate is a naive remaining-budget heuristic, not a calibrated
// probability.
type RetryAnalysis struct {
	Attempts        int       `json:"attempts"`
	IntervalSeconds []float64 `json:"interval_seconds"`
	Pattern         string    `json:"pattern"`
	SuccessEstimate float64   `json:"success_estimate"`
}

// Suggestion confidence levels, strongest first.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Suggestion types.
const (
	SuggestRetry        = "retry"
	SuggestReassign     = "reassign_worker"
	SuggestManualReview = "manual_review"
	SuggestSystemFix    = "system_fix"
)

// RecoverySuggestion is one ranked, optionally automatable recovery action.
type RecoverySuggestion struct {
	Type                 string `json:"type"`
	Description          string `json:"description"`
	Confidence           string `json:"confidence"`
	EstimatedSuccessRate *int   `json:"estimated_success_rate,omitempty"`
	Automatable          bool   `json:"automated_action_available"`
}

// SimilarFailure points at another job that failed in the same category.
type SimilarFailure struct {
	JobID    string `json:"job_id"`
	Category string `json:"category"`
}

// FacetAvailability flags which report facets were fully derived. A false
// flag means the facet degraded (timeout, read error, parse error) and its
// content must not be read as "empty and complete".
type FacetAvailability struct {
	FastStore       bool `json:"fast_store"`
	Relational      bool `json:"relational"`
	Attestations    bool `json:"attestations"`
	Timeline        bool `json:"timeline"`
	Consistency     bool `json:"consistency"`
	RetryHistory    bool `json:"retry_history"`
	History         bool `json:"history"`
	SimilarFailures bool `json:"similar_failures"`
	Assets          bool `json:"assets"`
}

// ForensicsReport is the engine's full answer for one job.
type ForensicsReport struct {
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Job               CanonicalJob           `json:"job"`
	Timeline          []LifecycleEvent       `json:"timeline"`
	Attestations      []Attestation          `json:"attestations"`
	AttestationGroups []AttestationGroup     `json:"attestation_groups"`
	ErrorCategory     string                 `json:"error_category,omitempty"`
	Consistency       ConsistencyReport      `json:"consistency"`
	Retries           *RetryAnalysis         `json:"retries,omitempty"`
	Suggestions       []RecoverySuggestion   `json:"suggestions"`
	SimilarFailures   []SimilarFailure       `json:"similar_failures,omitempty"`
	AssetChecks       []AssetCheck           `json:"asset_checks,omitempty"`
	CrossSystemRefs   []CrossSystemReference `json:"cross_system_refs,omitempty"`
	History           []JobHistoryEntry      `json:"history,omitempty"`

	Facets  FacetAvailability `json:"facets"`
	Partial bool              `json:"partial"`
}

// FailedJobAnalysis pairs a failed job with its forensics for batch reporting.
type FailedJobAnalysis struct {
	JobID  string           `json:"job_id"`
	Report *ForensicsReport `json:"forensics,omitempty"`
	Error  string           `json:"error,omitempty"`
}

package models

import (
	"encoding/json"
	"time"
)

// AttestationKind identifies which actor produced a proof record.
const (
	AttestWorkerCompletion = "worker_completion"
	AttestWorkerFailure    = "worker_failure"
	AttestAPICompletion    = "api_completion"
	AttestNotification     = "notification"
)

// Attestation is one actor's claim about job completion or failure, recovered
// from the fast store. The Pattern tag records which key-naming era matched it.
type Attestation struct {
	Kind      string     `json:"kind"`
	Key       string     `json:"key"`
	Pattern   string     `json:"pattern"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Worker attestations.
	RetryCount int             `json:"retry_count,omitempty"`
	Step       int             `json:"step,omitempty"`
	MachineID  string          `json:"machine_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	AssetURLs  []string        `json:"asset_urls,omitempty"`
	Error      string          `json:"error,omitempty"`

	// API attestations.
	AssetLocations []string `json:"asset_locations,omitempty"`
	APIInstance    string   `json:"api_instance,omitempty"`
	APIVersion     string   `json:"api_version,omitempty"`

	// Notification attestations.
	Delivered *bool  `json:"delivered,omitempty"`
	Method    string `json:"method,omitempty"`
	Content   string `json:"content,omitempty"`
}

// BestTimestamp returns the attestation's ordering timestamp, zero if none.
func (a Attestation) BestTimestamp() time.Time {
	if a.Timestamp != nil {
		return *a.Timestamp
	}
	return time.Time{}
}

// AttestationGroup collects the worker attestations of one retry attempt,
// ordered by step then completion time.
type AttestationGroup struct {
	RetryCount   int           `json:"retry_count"`
	Attestations []Attestation `json:"attestations"`
}

// AssetCheck is the outcome of probing one attested asset location.
type AssetCheck struct {
	Location string `json:"location"`
	Exists   *bool  `json:"exists,omitempty"` // nil means unchecked
	Detail   string `json:"detail,omitempty"`
}

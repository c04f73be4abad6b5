package faststore

import "fmt"

// Pattern describes one attestation key-naming convention. The table below is
// ordered: current-format patterns first, legacy fallbacks after. New eras are
// appended, never edited in place, so older keys keep matching forever.
type Pattern struct {
	Name string // semantic tag recorded on every matched attestation
	Kind string // models.Attest* kind produced by this pattern

	// NeedsWorkflow marks patterns keyed by workflow id; they are skipped
	// when the job has no known workflow.
	NeedsWorkflow bool

	// StepFromKey marks patterns whose trailing key segment is a step id.
	StepFromKey bool

	match func(jobID, workflowID string) string
}

// Glob returns the MATCH expression for a SCAN over this pattern.
func (p Pattern) Glob(jobID, workflowID string) string {
	return p.match(jobID, workflowID)
}

// attestationPatterns is the fixed scan order for proof-of-work records.
var attestationPatterns = []Pattern{
	{
		Name:        "worker-completion-v2",
		Kind:        "worker_completion",
		StepFromKey: true,
		match: func(jobID, _ string) string {
			return fmt.Sprintf("worker:completion:%s:*", jobID)
		},
	},
	{
		Name:        "worker-failure-v2",
		Kind:        "worker_failure",
		StepFromKey: true,
		match: func(jobID, _ string) string {
			return fmt.Sprintf("worker:failure:%s:*", jobID)
		},
	},
	{
		Name: "job-completion-v1",
		Kind: "worker_completion",
		match: func(jobID, _ string) string {
			return fmt.Sprintf("job:completion:%s", jobID)
		},
	},
	{
		Name: "job-failure-v1",
		Kind: "worker_failure",
		match: func(jobID, _ string) string {
			return fmt.Sprintf("job:failure:%s", jobID)
		},
	},
	{
		Name:          "workflow-api-completion-v1",
		Kind:          "api_completion",
		NeedsWorkflow: true,
		match: func(jobID, workflowID string) string {
			return fmt.Sprintf("workflow:%s:job:%s:api-completion", workflowID, jobID)
		},
	},
	{
		Name: "api-completion-v2",
		Kind: "api_completion",
		match: func(jobID, _ string) string {
			return fmt.Sprintf("api:completion:%s", jobID)
		},
	},
	{
		Name: "notification-v2",
		Kind: "notification",
		match: func(jobID, _ string) string {
			return fmt.Sprintf("notification:%s:*", jobID)
		},
	},
}

// Patterns returns the ordered attestation pattern table.
func Patterns() []Pattern {
	out := make([]Pattern, len(attestationPatterns))
	copy(out, attestationPatterns)
	return out
}

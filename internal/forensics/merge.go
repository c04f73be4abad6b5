package forensics

import (
	"job-forensics/internal/models"
)

// Merge combines the two store projections into the canonical view.
//
// Precedence: the relational row is the base, every field present on the fast
// record overwrites it, and status always comes from the fast record when one
// exists. The fast store reflects the currently-executing lifecycle; the
// relational store outlives execution and may be stale. A status divergence
// is recorded on StatusSources and surfaced by the consistency checker, never
// blocks the merge.
func Merge(fast *models.FastJob, relational *models.RelationalJob) *models.CanonicalJob {
	if fast == nil && relational == nil {
		return nil
	}

	var job models.CanonicalJob

	if relational != nil {
		job = models.CanonicalJob{
			ID:               relational.ID,
			Status:           relational.Status,
			Priority:         relational.Priority,
			RetryCount:       relational.RetryCount,
			MaxRetries:       relational.MaxRetries,
			WorkerID:         relational.WorkerID,
			LastFailedWorker: relational.LastFailedWorker,
			WorkflowID:       relational.WorkflowID,
			Payload:          relational.Payload,
			LastError:        relational.LastError,
			CreatedAt:        relational.CreatedAt,
			AssignedAt:       relational.AssignedAt,
			StartedAt:        relational.StartedAt,
			CompletedAt:      relational.CompletedAt,
			FailedAt:         relational.FailedAt,
			Workflow:         relational.Workflow,
			Collection:       relational.Collection,
			Files:            relational.Files,
			MiniApp:          relational.MiniApp,
		}
		s := relational.Status
		job.StatusSources.Relational = &s
	}

	if fast != nil {
		job.ID = fast.ID
		// Fast store is the single source of truth for current status.
		job.Status = fast.Status
		s := fast.Status
		job.StatusSources.FastStore = &s

		if fast.Priority != 0 {
			job.Priority = fast.Priority
		}
		if fast.RetryCount != 0 {
			job.RetryCount = fast.RetryCount
		}
		if fast.MaxRetries != 0 {
			job.MaxRetries = fast.MaxRetries
		}
		if fast.WorkerID != nil {
			job.WorkerID = fast.WorkerID
		}
		if fast.LastFailedWorker != nil {
			job.LastFailedWorker = fast.LastFailedWorker
		}
		if fast.WorkflowID != nil {
			job.WorkflowID = fast.WorkflowID
		}
		if len(fast.Payload) > 0 {
			job.Payload = fast.Payload
		}
		if fast.LastError != nil {
			job.LastError = fast.LastError
		}
		if fast.CreatedAt != nil {
			job.CreatedAt = fast.CreatedAt
		}
		if fast.AssignedAt != nil {
			job.AssignedAt = fast.AssignedAt
		}
		if fast.StartedAt != nil {
			job.StartedAt = fast.StartedAt
		}
		if fast.CompletedAt != nil {
			job.CompletedAt = fast.CompletedAt
		}
		if fast.FailedAt != nil {
			job.FailedAt = fast.FailedAt
		}
	}

	return &job
}

// StatusDiverged reports whether both stores held the job with different
// statuses.
func StatusDiverged(job *models.CanonicalJob) bool {
	src := job.StatusSources
	return src.FastStore != nil && src.Relational != nil && *src.FastStore != *src.Relational
}

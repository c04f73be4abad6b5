package forensics

import (
	"job-forensics/internal/models"
)

// prioritySource names the store whose status wins the merge. The fast store
// always wins; the report records that explicitly so consumers know which
// side a discrepancy should be reconciled toward.
const prioritySource = "fast_store"

// CheckConsistency compares the canonical status against every cross-system
// reference. No references means "no discrepancy data", which is distinct
// from "consistent". This never errors.
func CheckConsistency(job *models.CanonicalJob, refs []models.CrossSystemReference) models.ConsistencyReport {
	report := models.ConsistencyReport{
		PrioritySource:  prioritySource,
		CanonicalStatus: job.Status,
	}
	if len(refs) == 0 && !StatusDiverged(job) {
		return report
	}
	report.DataAvailable = true

	for _, ref := range refs {
		if statusAgrees(job.Status, ref.MappedStatus) {
			continue
		}
		report.DiscrepancyDetected = true
		report.Disagreements = append(report.Disagreements, ref)
	}

	// A divergence between the two stores themselves is a discrepancy too,
	// reported as a reference against the losing (relational) status.
	if StatusDiverged(job) {
		report.DiscrepancyDetected = true
		report.Disagreements = append(report.Disagreements, models.CrossSystemReference{
			System:       "relational_store",
			RefID:        job.ID,
			RawStatus:    *job.StatusSources.Relational,
			MappedStatus: models.MapReferenceStatus(*job.StatusSources.Relational),
		})
	}
	return report
}

// statusAgrees maps the canonical status onto the reference status set and
// compares. Unknown reference statuses are never counted as disagreement.
func statusAgrees(canonical, mapped string) bool {
	if mapped == models.RefStatusUnknown {
		return true
	}
	switch canonical {
	case models.StatusCompleted:
		return mapped == models.RefStatusCompleted
	case models.StatusFailed, models.StatusTimeout, models.StatusUnworkable:
		return mapped == models.RefStatusFailed
	case models.StatusCancelled:
		// Cancellation has no reliable cross-system mapping.
		return true
	default:
		return mapped == models.RefStatusActive
	}
}

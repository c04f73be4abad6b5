package forensics

import (
	"job-forensics/internal/models"
)

// GenerateSuggestions maps the failure classification and consistency
// findings onto recovery actions. Pure function of its inputs: identical
// inputs yield identical, insertion-ordered output. The failure rule table is
// consulted only for failed jobs; a cross-system discrepancy contributes a
// system_fix suggestion regardless of status.
func GenerateSuggestions(job *models.CanonicalJob, category string, consistency models.ConsistencyReport) []models.RecoverySuggestion {
	var out []models.RecoverySuggestion

	if job.Status == models.StatusFailed {
		switch category {
		case models.ErrCategoryTimeout:
			out = append(out, suggestion(models.SuggestRetry,
				"Timeout failures usually clear on retry once load subsides.",
				models.ConfidenceHigh, 70, true))
		case models.ErrCategoryNetwork:
			out = append(out, suggestion(models.SuggestRetry,
				"Transient network failure; retry on the same worker.",
				models.ConfidenceMedium, 60, true))
		case models.ErrCategoryResource:
			out = append(out, suggestion(models.SuggestReassign,
				"Worker exhausted local resources; reassign the job to a different worker.",
				models.ConfidenceHigh, 80, true))
		case models.ErrCategoryValidation:
			out = append(out, models.RecoverySuggestion{
				Type:        models.SuggestManualReview,
				Description: "Input failed validation; retrying will not help until the payload is corrected.",
				Confidence:  models.ConfidenceHigh,
				Automatable: false,
			})
		default:
			if job.RetryCount < job.MaxRetries {
				out = append(out, suggestion(models.SuggestRetry,
					"Unclassified failure with retry budget remaining; a retry is cheap to attempt.",
					models.ConfidenceLow, 30, true))
			}
		}
	}

	if consistency.DiscrepancyDetected {
		out = append(out, models.RecoverySuggestion{
			Type:        models.SuggestSystemFix,
			Description: "Stores disagree on job status; reconcile the lagging system toward the fast store before acting on this job.",
			Confidence:  models.ConfidenceMedium,
			Automatable: false,
		})
	}

	return out
}

func suggestion(typ, desc, confidence string, rate int, automatable bool) models.RecoverySuggestion {
	return models.RecoverySuggestion{
		Type:                 typ,
		Description:          desc,
		Confidence:           confidence,
		EstimatedSuccessRate: &rate,
		Automatable:          automatable,
	}
}

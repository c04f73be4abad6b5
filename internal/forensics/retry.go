package forensics

import (
	"job-forensics/internal/models"
)

// consistentTolerance is the band (fraction of the first interval) within
// which all intervals must fall to call a cadence consistent.
const consistentTolerance = 0.25

// AnalyzeRetries derives retry cadence from pre-retry state backups. Returns
// nil when no history exists. The success estimate is a naive
// remaining-budget heuristic, not a calibrated probability.
func AnalyzeRetries(job *models.CanonicalJob, history []models.RetrySnapshot) *models.RetryAnalysis {
	if len(history) == 0 {
		return nil
	}

	intervals := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		intervals = append(intervals, history[i].RetriedAt.Sub(history[i-1].RetriedAt).Seconds())
	}

	return &models.RetryAnalysis{
		Attempts:        len(history),
		IntervalSeconds: intervals,
		Pattern:         ClassifyIntervals(intervals),
		SuccessEstimate: successEstimate(job.RetryCount, job.MaxRetries),
	}
}

// ClassifyIntervals buckets inter-retry intervals into a cadence pattern:
// consistent when every interval stays within the tolerance band of the
// first, escalating when each interval is at least the previous one, random
// otherwise. Consistency is checked first so near-flat cadences do not read
// as escalating.
func ClassifyIntervals(intervals []float64) string {
	if len(intervals) < 2 {
		return models.RetryPatternConsistent
	}

	first := intervals[0]
	consistent := first > 0
	for _, iv := range intervals {
		if iv < first*(1-consistentTolerance) || iv > first*(1+consistentTolerance) {
			consistent = false
			break
		}
	}
	if consistent {
		return models.RetryPatternConsistent
	}

	escalating := true
	for i := 1; i < len(intervals); i++ {
		if intervals[i] < intervals[i-1] {
			escalating = false
			break
		}
	}
	if escalating {
		return models.RetryPatternEscalating
	}
	return models.RetryPatternRandom
}

func successEstimate(retryCount, maxRetries int) float64 {
	if maxRetries <= 0 {
		return 0
	}
	est := float64(maxRetries-retryCount) / float64(maxRetries)
	if est < 0 {
		return 0
	}
	if est > 1 {
		return 1
	}
	return est
}

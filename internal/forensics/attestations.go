package forensics

import (
	"sort"

	"job-forensics/internal/models"
)

// GroupWorkerAttestations buckets worker attestations by retry attempt, one
// group per retry_count, ordered ascending. Within a group, attestations are
// ordered by step number, ties broken by timestamp. Non-worker attestations
// are ignored; duplicates recovered by overlapping patterns stay.
func GroupWorkerAttestations(atts []models.Attestation) []models.AttestationGroup {
	buckets := make(map[int][]models.Attestation)
	for _, a := range atts {
		if a.Kind != models.AttestWorkerCompletion && a.Kind != models.AttestWorkerFailure {
			continue
		}
		buckets[a.RetryCount] = append(buckets[a.RetryCount], a)
	}
	if len(buckets) == 0 {
		return nil
	}

	retries := make([]int, 0, len(buckets))
	for rc := range buckets {
		retries = append(retries, rc)
	}
	sort.Ints(retries)

	groups := make([]models.AttestationGroup, 0, len(retries))
	for _, rc := range retries {
		group := buckets[rc]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Step != group[j].Step {
				return group[i].Step < group[j].Step
			}
			return group[i].BestTimestamp().Before(group[j].BestTimestamp())
		})
		groups = append(groups, models.AttestationGroup{RetryCount: rc, Attestations: group})
	}
	return groups
}

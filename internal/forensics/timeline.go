package forensics

import (
	"sort"
	"time"

	"job-forensics/internal/models"
)

// BuildTimeline derives the ordered lifecycle events from the canonical
// timestamps. Missing timestamps produce no event, so an in-flight job yields
// a partial timeline; kinds never repeat.
func BuildTimeline(job *models.CanonicalJob) []models.LifecycleEvent {
	if job == nil {
		return nil
	}

	actor := "unknown"
	if job.WorkerID != nil && *job.WorkerID != "" {
		actor = *job.WorkerID
	}

	type stamp struct {
		kind  string
		at    *time.Time
		actor string
	}
	stamps := []stamp{
		{models.EventCreated, job.CreatedAt, "system"},
		{models.EventAssigned, job.AssignedAt, actor},
		{models.EventStarted, job.StartedAt, actor},
		{models.EventCompleted, job.CompletedAt, actor},
		{models.EventFailed, job.FailedAt, actor},
	}

	events := make([]models.LifecycleEvent, 0, len(stamps))
	for _, s := range stamps {
		if s.at == nil {
			continue
		}
		events = append(events, models.LifecycleEvent{
			Timestamp: *s.at,
			Kind:      s.kind,
			Actor:     s.actor,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

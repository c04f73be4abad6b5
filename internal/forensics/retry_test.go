package forensics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-forensics/internal/models"
)

func TestClassifyIntervals(t *testing.T) {
	cases := []struct {
		name      string
		intervals []float64
		want      string
	}{
		{"near flat", []float64{10, 10, 11}, models.RetryPatternConsistent},
		{"exponential backoff", []float64{5, 15, 45}, models.RetryPatternEscalating},
		{"scattered", []float64{40, 5, 30}, models.RetryPatternRandom},
		{"single interval", []float64{30}, models.RetryPatternConsistent},
		{"flat exactly", []float64{10, 10, 10}, models.RetryPatternConsistent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyIntervals(tc.intervals))
		})
	}
}

func TestAnalyzeRetries_NoHistory(t *testing.T) {
	job := &models.CanonicalJob{ID: "j1", RetryCount: 2, MaxRetries: 5}
	assert.Nil(t, AnalyzeRetries(job, nil))
}

func TestAnalyzeRetries(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	history := []models.RetrySnapshot{
		{Attempt: 0, RetriedAt: base},
		{Attempt: 1, RetriedAt: base.Add(5 * time.Second)},
		{Attempt: 2, RetriedAt: base.Add(20 * time.Second)},
		{Attempt: 3, RetriedAt: base.Add(65 * time.Second)},
	}
	job := &models.CanonicalJob{ID: "j1", RetryCount: 3, MaxRetries: 5}

	got := AnalyzeRetries(job, history)

	require.NotNil(t, got)
	assert.Equal(t, 4, got.Attempts)
	assert.Equal(t, []float64{5, 15, 45}, got.IntervalSeconds)
	assert.Equal(t, models.RetryPatternEscalating, got.Pattern)
	assert.InDelta(t, 0.4, got.SuccessEstimate, 1e-9)
}

func TestSuccessEstimate_Clamping(t *testing.T) {
	assert.Equal(t, 0.0, successEstimate(3, 0), "zero max retries yields zero")
	assert.Equal(t, 0.0, successEstimate(7, 5), "exhausted budget clamps to zero")
	assert.Equal(t, 1.0, successEstimate(0, 5))
}

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tailorline/internal/domain"
)

func TestSequencePredecessor(t *testing.T) {
	seq := newSequence([]domain.WorkflowStep{
		{ID: 30, StepNo: 4},
		{ID: 10, StepNo: 1, Status: domain.StepCompleted},
		{ID: 20, StepNo: 2},
	})
	assert.Equal(t, []int{1, 2, 4}, []int{seq.steps[0].StepNo, seq.steps[1].StepNo, seq.steps[2].StepNo})

	_, _, first := seq.predecessor(seq.steps[0])
	assert.True(t, first)

	pred, ok, first := seq.predecessor(seq.steps[1])
	assert.False(t, first)
	assert.True(t, ok)
	assert.Equal(t, int64(10), pred.ID)

	_, ok, first = seq.predecessor(seq.steps[2])
	assert.False(t, first)
	assert.False(t, ok, "gap at 3 leaves step 4 without a predecessor")
}

func TestSequenceAggregates(t *testing.T) {
	three, five := 3, 5
	seq := newSequence([]domain.WorkflowStep{
		{StepNo: 1, Status: domain.StepCompleted, ActualHours: &three},
		{StepNo: 2, Status: domain.StepCompleted, ActualHours: &five},
		{StepNo: 3, Status: domain.StepPending},
	})
	completed, total := seq.counts()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 3, total)
	assert.Equal(t, 8, seq.actualHours())
	assert.Equal(t, 66, progressPercent(completed, total))
	assert.Equal(t, domain.ProjectInProgress, projectStatus(completed, total))
	assert.Equal(t, domain.ProjectCompleted, projectStatus(3, 3))
	assert.Equal(t, 0, progressPercent(0, 0))
}

func TestDerivedMetrics(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, daysRemaining(now.Add(time.Minute), now))
	assert.Equal(t, 1, daysRemaining(now.Add(24*time.Hour), now))
	assert.Equal(t, 2, daysRemaining(now.Add(25*time.Hour), now))
	assert.Equal(t, 0, daysRemaining(now, now))
	assert.Equal(t, 0, daysRemaining(now.Add(-72*time.Hour), now))

	assert.Equal(t, 0, timeEfficiency(10, 0))
	assert.Equal(t, 100, timeEfficiency(10, 10))
	assert.Equal(t, 100, timeEfficiency(10, 4))
	assert.Equal(t, 33, timeEfficiency(10, 30))

	assert.Equal(t, 0, elapsedHours(now, now.Add(-time.Hour)))
	assert.Equal(t, 2, elapsedHours(now, now.Add(2*time.Hour+59*time.Minute)))
}

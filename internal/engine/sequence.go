package engine

import (
	"sort"

	"tailorline/internal/domain"
)

// sequence is a project's step set ordered by step number. A step's
// predecessor is the step numbered one lower; a gap means there is none.
type sequence struct {
	steps []domain.WorkflowStep
	byNo  map[int]int
}

func newSequence(steps []domain.WorkflowStep) sequence {
	sorted := make([]domain.WorkflowStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepNo < sorted[j].StepNo })
	byNo := make(map[int]int, len(sorted))
	for i, s := range sorted {
		byNo[s.StepNo] = i
	}
	return sequence{steps: sorted, byNo: byNo}
}

func (s sequence) step(no int) (domain.WorkflowStep, bool) {
	i, ok := s.byNo[no]
	if !ok {
		return domain.WorkflowStep{}, false
	}
	return s.steps[i], true
}

// predecessor returns the step that must be completed before st. first is
// true for step 1, which has no predecessor.
func (s sequence) predecessor(st domain.WorkflowStep) (pred domain.WorkflowStep, ok bool, first bool) {
	if st.StepNo <= 1 {
		return domain.WorkflowStep{}, false, true
	}
	pred, ok = s.step(st.StepNo - 1)
	return pred, ok, false
}

func (s sequence) counts() (completed, total int) {
	for _, st := range s.steps {
		if st.Status == domain.StepCompleted {
			completed++
		}
	}
	return completed, len(s.steps)
}

// actualHours sums the recorded hours of completed steps.
func (s sequence) actualHours() int {
	sum := 0
	for _, st := range s.steps {
		if st.Status == domain.StepCompleted && st.ActualHours != nil {
			sum += *st.ActualHours
		}
	}
	return sum
}

func sumEstimates(specs []domain.StepSpec) int {
	sum := 0
	for _, sp := range specs {
		sum += sp.EstimatedHours
	}
	return sum
}

func progressPercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return 100 * completed / total
}

func projectStatus(completed, total int) string {
	if total > 0 && completed == total {
		return domain.ProjectCompleted
	}
	return domain.ProjectInProgress
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tailorline/internal/domain"
	"tailorline/internal/events"
	"tailorline/internal/repo"
)

// StepCompletion is the outcome of completing a step.
type StepCompletion struct {
	Message     string `json:"message"`
	StepID      int64  `json:"step_id"`
	StepNo      int    `json:"step_no"`
	ProjectID   int64  `json:"project_id"`
	ActualHours int    `json:"actual_hours"`
	Progress    int    `json:"progress"`
	Status      string `json:"status" enum:"pending,in-progress,completed"`
}

// CompleteStep marks a pending step completed once its predecessor is done,
// records the hours spent since the predecessor finished and rolls progress up
// to the project.
func (e Engine) CompleteStep(ctx context.Context, stepID int64, actorID string) (StepCompletion, error) {
	res, err := e.completeStep(ctx, stepID, actorID)
	return res, classify(err)
}

func (e Engine) completeStep(ctx context.Context, stepID int64, actorID string) (StepCompletion, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return StepCompletion{}, err
	}
	defer tx.Rollback()

	step, err := e.Repo.GetStepTx(ctx, tx, stepID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return StepCompletion{}, notFound("workflow step", stepID)
		}
		return StepCompletion{}, err
	}
	if _, err := e.Repo.LockProject(ctx, tx, step.ProjectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return StepCompletion{}, notFound("project", step.ProjectID)
		}
		return StepCompletion{}, err
	}
	// re-read under the project lock
	steps, err := e.Repo.ListStepsTx(ctx, tx, step.ProjectID)
	if err != nil {
		return StepCompletion{}, err
	}
	seq := newSequence(steps)
	step, ok := seq.step(step.StepNo)
	if !ok || step.ID != stepID {
		return StepCompletion{}, notFound("workflow step", stepID)
	}
	if step.Status == domain.StepCompleted {
		return StepCompletion{}, badRequest(map[string]any{"step_id": stepID, "step_no": step.StepNo}, "step %d is already completed", step.StepNo)
	}

	start := step.CreatedAt
	pred, ok, first := seq.predecessor(step)
	if !first {
		if !ok || pred.Status != domain.StepCompleted {
			return StepCompletion{}, badRequest(map[string]any{"step_id": stepID, "step_no": step.StepNo},
				"cannot complete step %d before step %d is completed", step.StepNo, step.StepNo-1)
		}
		if pred.CompletedAt != nil {
			start = *pred.CompletedAt
		}
	}

	now := e.now()
	hours := elapsedHours(start, now)
	if err := e.Repo.MarkStepCompleted(ctx, tx, stepID, hours, now); err != nil {
		if errors.Is(err, repo.ErrNoRowsAffected) {
			return StepCompletion{}, conflict(err, "step %d changed while completing it", step.StepNo)
		}
		return StepCompletion{}, err
	}
	completed, total, err := e.Repo.CountSteps(ctx, tx, step.ProjectID)
	if err != nil {
		return StepCompletion{}, err
	}
	progress := progressPercent(completed, total)
	status := projectStatus(completed, total)
	if err := e.Repo.SetProjectProgress(ctx, tx, step.ProjectID, status, progress, now); err != nil {
		if errors.Is(err, repo.ErrNoRowsAffected) {
			return StepCompletion{}, notFound("project", step.ProjectID)
		}
		return StepCompletion{}, err
	}
	if err := e.appendEvent(ctx, tx, events.StepCompleted, step.ProjectID, events.EntityStep, stepID, actorID, events.EventPayload{
		"step_no":      step.StepNo,
		"actual_hours": hours,
		"progress":     progress,
		"status":       status,
	}); err != nil {
		return StepCompletion{}, err
	}
	if err := tx.Commit(); err != nil {
		return StepCompletion{}, err
	}
	e.logger().Info("step completed",
		zap.Int64("project_id", step.ProjectID),
		zap.Int64("step_id", stepID),
		zap.Int("step_no", step.StepNo),
		zap.Int("actual_hours", hours),
		zap.Int("progress", progress),
		zap.String("status", status))
	return StepCompletion{
		Message:     fmt.Sprintf("step %d completed in %dh; project is %d%% done", step.StepNo, hours, progress),
		StepID:      stepID,
		StepNo:      step.StepNo,
		ProjectID:   step.ProjectID,
		ActualHours: hours,
		Progress:    progress,
		Status:      status,
	}, nil
}

// elapsedHours counts whole hours between start and end, never negative.
func elapsedHours(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(d / time.Hour)
}

func (e Engine) UpdateStepNotes(ctx context.Context, stepID int64, notes, actorID string) error {
	return classify(e.updateStepNotes(ctx, stepID, notes, actorID))
}

func (e Engine) updateStepNotes(ctx context.Context, stepID int64, notes, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	step, err := e.Repo.GetStepTx(ctx, tx, stepID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("workflow step", stepID)
		}
		return err
	}
	if err := e.Repo.UpdateStepNotes(ctx, tx, stepID, notes, e.now()); err != nil {
		return writeErr(err, "notes update of step %d affected no rows", step.StepNo)
	}
	if err := e.appendEvent(ctx, tx, events.StepNotesUpdated, step.ProjectID, events.EntityStep, stepID, actorID, events.EventPayload{
		"step_no": step.StepNo,
		"length":  len(notes),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logger().Info("step notes updated", zap.Int64("project_id", step.ProjectID), zap.Int64("step_id", stepID))
	return nil
}

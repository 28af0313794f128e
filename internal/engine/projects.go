package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"tailorline/internal/domain"
	"tailorline/internal/events"
	"tailorline/internal/repo"
)

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	OrderID      int64
	CustomerID   int64
	TailorID     int64
	Description  string
	Deadline     time.Time
	Rush         bool
	Instructions string
	Steps        []domain.StepSpec
	ActorID      string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	p, err := e.createProject(ctx, opts)
	return p, classify(err)
}

func (e Engine) createProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Deadline.IsZero() {
		return domain.Project{}, badRequest(map[string]any{"field": "deadline"}, "deadline is required")
	}
	if err := validateStepSpecs(opts.Steps); err != nil {
		return domain.Project{}, err
	}
	if err := e.checkParties(ctx, opts.OrderID, opts.CustomerID, opts.TailorID); err != nil {
		return domain.Project{}, err
	}
	if err := e.checkTemplates(ctx, opts.Steps); err != nil {
		return domain.Project{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.now()
	p := domain.Project{
		OrderID:        opts.OrderID,
		CustomerID:     opts.CustomerID,
		TailorID:       opts.TailorID,
		Description:    opts.Description,
		Deadline:       opts.Deadline.UTC(),
		Rush:           opts.Rush,
		Instructions:   opts.Instructions,
		EstimatedHours: sumEstimates(opts.Steps),
		Status:         domain.ProjectPending,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.ID, err = e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, sp := range opts.Steps {
		if _, err := e.Repo.InsertStep(ctx, tx, newStep(p.ID, sp, now)); err != nil {
			return domain.Project{}, fmt.Errorf("insert step %d: %w", sp.StepNo, err)
		}
	}
	if err := e.appendEvent(ctx, tx, events.ProjectCreated, p.ID, events.EntityProject, p.ID, opts.ActorID, events.EventPayload{
		"order_id":        p.OrderID,
		"tailor_id":       p.TailorID,
		"steps":           len(opts.Steps),
		"estimated_hours": p.EstimatedHours,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.logger().Info("project created",
		zap.Int64("project_id", p.ID),
		zap.Int64("order_id", p.OrderID),
		zap.Int("steps", len(opts.Steps)),
		zap.Int("estimated_hours", p.EstimatedHours))
	return p, nil
}

// ProjectUpdateOptions carries the header fields to change (nil keeps the
// current value) and an optional replacement step list.
type ProjectUpdateOptions struct {
	ID           int64
	Description  *string
	Deadline     *time.Time
	Rush         *bool
	Instructions *string
	TailorID     *int64
	// Steps replaces the step set when non-nil; steps are matched by step number.
	Steps   []domain.StepSpec
	ActorID string
}

func (o ProjectUpdateOptions) header() repo.ProjectHeaderUpdate {
	u := repo.ProjectHeaderUpdate{
		Description:  o.Description,
		Rush:         o.Rush,
		Instructions: o.Instructions,
		TailorID:     o.TailorID,
	}
	if o.Deadline != nil {
		d := o.Deadline.UTC()
		u.Deadline = &d
	}
	return u
}

// StepSync reports how a replacement step list was applied.
type StepSync struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (StepSync, error) {
	s, err := e.updateProject(ctx, opts)
	return s, classify(err)
}

func (e Engine) updateProject(ctx context.Context, opts ProjectUpdateOptions) (StepSync, error) {
	var applied StepSync
	if _, err := e.Repo.GetProject(ctx, opts.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return applied, notFound("project", opts.ID)
		}
		return applied, err
	}
	if opts.TailorID != nil {
		if _, err := e.refs().GetStaff(ctx, *opts.TailorID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return applied, notFound("tailor", *opts.TailorID)
			}
			return applied, err
		}
	}
	if opts.Steps != nil {
		if err := validateStepSpecs(opts.Steps); err != nil {
			return applied, err
		}
		if err := e.checkTemplates(ctx, opts.Steps); err != nil {
			return applied, err
		}
	}
	hdr := opts.header()
	if hdr.Empty() && opts.Steps == nil {
		return applied, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return applied, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.LockProject(ctx, tx, opts.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return applied, conflict(err, "project %d was removed before the update was applied", opts.ID)
		}
		return applied, err
	}
	now := e.now()
	if !hdr.Empty() {
		if err := e.Repo.UpdateProjectHeader(ctx, tx, opts.ID, hdr, now); err != nil {
			return applied, writeErr(err, "project %d header update affected no rows", opts.ID)
		}
	}
	estimated := -1
	if opts.Steps != nil {
		if applied, err = e.syncSteps(ctx, tx, opts.ID, opts.Steps, now); err != nil {
			return applied, err
		}
		if estimated, err = e.Repo.SumEstimatedHours(ctx, tx, opts.ID); err != nil {
			return applied, err
		}
		if err := e.Repo.SetEstimatedHours(ctx, tx, opts.ID, estimated, now); err != nil {
			return applied, writeErr(err, "project %d estimate update affected no rows", opts.ID)
		}
	}
	payload := events.EventPayload{"fields": changedFields(hdr)}
	if opts.Steps != nil {
		payload["steps"] = applied
		payload["estimated_hours"] = estimated
	}
	if err := e.appendEvent(ctx, tx, events.ProjectUpdated, opts.ID, events.EntityProject, opts.ID, opts.ActorID, payload); err != nil {
		return applied, err
	}
	if err := tx.Commit(); err != nil {
		return applied, err
	}
	e.logger().Info("project updated",
		zap.Int64("project_id", opts.ID),
		zap.Strings("fields", changedFields(hdr)),
		zap.Int("steps_inserted", applied.Inserted),
		zap.Int("steps_updated", applied.Updated),
		zap.Int("steps_removed", applied.Removed))
	return applied, nil
}

// syncSteps makes the stored step set match specs by step number. Matched
// steps keep their id and completion state.
func (e Engine) syncSteps(ctx context.Context, tx *sql.Tx, projectID int64, specs []domain.StepSpec, now time.Time) (StepSync, error) {
	var res StepSync
	existing, err := e.Repo.ListStepsTx(ctx, tx, projectID)
	if err != nil {
		return res, err
	}
	current := newSequence(existing)
	wanted := make(map[int]struct{}, len(specs))
	for _, sp := range specs {
		wanted[sp.StepNo] = struct{}{}
	}
	for _, st := range current.steps {
		if _, ok := wanted[st.StepNo]; ok {
			continue
		}
		if err := e.Repo.DeleteStep(ctx, tx, st.ID); err != nil {
			return res, writeErr(err, "delete of step %d affected no rows", st.StepNo)
		}
		res.Removed++
	}
	for _, sp := range specs {
		if st, ok := current.step(sp.StepNo); ok {
			if err := e.Repo.UpdateStepSpec(ctx, tx, st.ID, sp, now); err != nil {
				return res, writeErr(err, "update of step %d affected no rows", sp.StepNo)
			}
			res.Updated++
			continue
		}
		if _, err := e.Repo.InsertStep(ctx, tx, newStep(projectID, sp, now)); err != nil {
			return res, fmt.Errorf("insert step %d: %w", sp.StepNo, err)
		}
		res.Inserted++
	}
	return res, nil
}

func newStep(projectID int64, sp domain.StepSpec, now time.Time) domain.WorkflowStep {
	return domain.WorkflowStep{
		ProjectID:      projectID,
		StepNo:         sp.StepNo,
		TemplateID:     sp.TemplateID,
		Notes:          sp.Notes,
		Status:         domain.StepPending,
		EstimatedHours: sp.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func validateStepSpecs(specs []domain.StepSpec) error {
	if len(specs) == 0 {
		return badRequest(map[string]any{"field": "steps"}, "at least one workflow step is required")
	}
	seen := make(map[int]struct{}, len(specs))
	for i, sp := range specs {
		if sp.StepNo < 1 {
			return badRequest(map[string]any{"index": i, "step_no": sp.StepNo}, "step_no must be at least 1, got %d", sp.StepNo)
		}
		if sp.EstimatedHours < 1 {
			return badRequest(map[string]any{"index": i, "step_no": sp.StepNo}, "estimated_hours of step %d must be at least 1", sp.StepNo)
		}
		if _, dup := seen[sp.StepNo]; dup {
			return badRequest(map[string]any{"step_no": sp.StepNo}, "duplicate step_no %d", sp.StepNo)
		}
		seen[sp.StepNo] = struct{}{}
	}
	return nil
}

// checkParties looks up the order, customer and tailor in parallel and
// reports the first one that is missing.
func (e Engine) checkParties(ctx context.Context, orderID, customerID, tailorID int64) error {
	refs := e.refs()
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		ok, err := refs.OrderExists(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("order", orderID)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		_, err := refs.GetCustomer(ctx, customerID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("customer", customerID)
		}
		return err
	})
	p.Go(func(ctx context.Context) error {
		_, err := refs.GetStaff(ctx, tailorID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("tailor", tailorID)
		}
		return err
	})
	return p.Wait()
}

// checkTemplates resolves every referenced template in a single lookup.
func (e Engine) checkTemplates(ctx context.Context, specs []domain.StepSpec) error {
	ids := make([]int64, 0, len(specs))
	seen := make(map[int64]struct{}, len(specs))
	for _, sp := range specs {
		if _, ok := seen[sp.TemplateID]; ok {
			continue
		}
		seen[sp.TemplateID] = struct{}{}
		ids = append(ids, sp.TemplateID)
	}
	found, err := e.refs().TemplatesByID(ctx, ids)
	if err != nil {
		return err
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return templatesNotFound(missing)
	}
	return nil
}

func changedFields(u repo.ProjectHeaderUpdate) []string {
	fields := []string{}
	if u.Description != nil {
		fields = append(fields, "description")
	}
	if u.Deadline != nil {
		fields = append(fields, "deadline")
	}
	if u.Rush != nil {
		fields = append(fields, "rush")
	}
	if u.Instructions != nil {
		fields = append(fields, "instructions")
	}
	if u.TailorID != nil {
		fields = append(fields, "tailor_id")
	}
	return fields
}

func writeErr(err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNoRowsAffected) {
		return conflict(err, format, args...)
	}
	return err
}

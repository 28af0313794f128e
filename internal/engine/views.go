package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"

	"tailorline/internal/domain"
	"tailorline/internal/repo"
)

// GetProject projects a project with its parties, ordered steps, line items
// and the metrics derived from them at the current time.
func (e Engine) GetProject(ctx context.Context, id int64) (domain.ProjectView, error) {
	v, err := e.getProject(ctx, id)
	return v, classify(err)
}

func (e Engine) getProject(ctx context.Context, id int64) (domain.ProjectView, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ProjectView{}, notFound("project", id)
		}
		return domain.ProjectView{}, err
	}
	v := domain.ProjectView{
		Project:  p,
		Customer: domain.Customer{ID: p.CustomerID},
		Tailor:   domain.Staff{ID: p.TailorID},
	}
	refs := e.refs()
	g := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	g.Go(func(ctx context.Context) error {
		c, err := refs.GetCustomer(ctx, p.CustomerID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		v.Customer = c
		return err
	})
	g.Go(func(ctx context.Context) error {
		s, err := refs.GetStaff(ctx, p.TailorID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		v.Tailor = s
		return err
	})
	g.Go(func(ctx context.Context) error {
		steps, err := e.Repo.ListStepViews(ctx, p.ID)
		v.Steps = steps
		return err
	})
	g.Go(func(ctx context.Context) error {
		items, err := refs.CustomOrderItems(ctx, p.OrderID)
		v.Items = items
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ProjectView{}, err
	}
	if v.Steps == nil {
		v.Steps = []domain.StepView{}
	}
	if v.Items == nil {
		v.Items = []domain.CustomOrderItem{}
	}
	applyMetrics(&v, e.now())
	return v, nil
}

func applyMetrics(v *domain.ProjectView, now time.Time) {
	steps := make([]domain.WorkflowStep, len(v.Steps))
	for i, s := range v.Steps {
		steps[i] = s.WorkflowStep
	}
	seq := newSequence(steps)
	v.StepsCompleted, v.TotalSteps = seq.counts()
	v.ActualProjectHours = seq.actualHours()
	v.DaysRemaining = daysRemaining(v.Deadline, now)
	v.TimeEfficiency = timeEfficiency(v.EstimatedHours, v.ActualProjectHours)
}

// daysRemaining rounds the time left up to whole days; past deadlines give 0.
func daysRemaining(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(left / day)
	if left%day != 0 {
		days++
	}
	return days
}

// timeEfficiency is estimated over actual hours as a floored percentage capped at 100.
func timeEfficiency(estimated, actual int) int {
	if actual <= 0 {
		return 0
	}
	eff := 100 * estimated / actual
	if eff > 100 {
		return 100
	}
	return eff
}

var projectStatuses = map[string]bool{
	domain.ProjectPending:    true,
	domain.ProjectInProgress: true,
	domain.ProjectCompleted:  true,
}

func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	if f.Status != "" && !projectStatuses[f.Status] {
		return nil, badRequest(map[string]any{"status": f.Status}, "unknown project status %q", f.Status)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, badRequest(nil, "limit and offset must not be negative")
	}
	res, err := e.Repo.ListProjects(ctx, f)
	if err != nil {
		return nil, classify(err)
	}
	if res == nil {
		res = []domain.Project{}
	}
	return res, nil
}

func (e Engine) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	res, err := e.Repo.ListTemplates(ctx)
	return res, classify(err)
}

// ProjectEvents returns the audit trail of a project, newest first.
func (e Engine) ProjectEvents(ctx context.Context, projectID int64, limit int, evtType string) ([]domain.Event, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("project", projectID)
		}
		return nil, classify(err)
	}
	res, err := e.Repo.LatestEvents(ctx, projectID, limit, evtType)
	return res, classify(err)
}

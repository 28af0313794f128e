package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tailorline/internal/domain"
)

const stepColumns = `id,project_id,step_no,template_id,notes,status,estimated_hours,actual_hours,completed_at,created_at,updated_at`

func scanStep(row rowScanner) (domain.WorkflowStep, error) {
	var s domain.WorkflowStep
	var notes, completedAt sql.NullString
	var actual sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.ProjectID, &s.StepNo, &s.TemplateID, &notes, &s.Status, &s.EstimatedHours, &actual, &completedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Notes = notes.String
	if actual.Valid {
		h := int(actual.Int64)
		s.ActualHours = &h
	}
	if s.CompletedAt, err = parseNullTS(completedAt); err != nil {
		return s, fmt.Errorf("step %d completed_at: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTS(createdAt); err != nil {
		return s, fmt.Errorf("step %d created_at: %w", s.ID, err)
	}
	if s.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return s, fmt.Errorf("step %d updated_at: %w", s.ID, err)
	}
	return s, nil
}

func (r Repo) InsertStep(ctx context.Context, tx *sql.Tx, s domain.WorkflowStep) (int64, error) {
	return r.insertReturningID(ctx, tx, `INSERT INTO workflow_steps(project_id,step_no,template_id,notes,status,estimated_hours,actual_hours,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ProjectID, s.StepNo, s.TemplateID, nullable(s.Notes), s.Status, s.EstimatedHours, nullableInt(s.ActualHours),
		nullableTS(s.CompletedAt), formatTS(s.CreatedAt), formatTS(s.UpdatedAt))
}

func (r Repo) GetStep(ctx context.Context, id int64) (domain.WorkflowStep, error) {
	return scanStep(r.DB.QueryRowContext(ctx, r.bind(`SELECT `+stepColumns+` FROM workflow_steps WHERE id=?`), id))
}

func (r Repo) GetStepTx(ctx context.Context, tx *sql.Tx, id int64) (domain.WorkflowStep, error) {
	return scanStep(tx.QueryRowContext(ctx, r.bind(`SELECT `+stepColumns+` FROM workflow_steps WHERE id=?`), id))
}

// GetStepByNoTx finds the step with the given number inside a project.
func (r Repo) GetStepByNoTx(ctx context.Context, tx *sql.Tx, projectID int64, stepNo int) (domain.WorkflowStep, error) {
	return scanStep(tx.QueryRowContext(ctx, r.bind(`SELECT `+stepColumns+` FROM workflow_steps WHERE project_id=? AND step_no=?`), projectID, stepNo))
}

// ListSteps returns a project's steps ordered by step number.
func (r Repo) ListSteps(ctx context.Context, projectID int64) ([]domain.WorkflowStep, error) {
	return r.listSteps(ctx, r.DB, projectID)
}

func (r Repo) ListStepsTx(ctx context.Context, tx *sql.Tx, projectID int64) ([]domain.WorkflowStep, error) {
	return r.listSteps(ctx, tx, projectID)
}

func (r Repo) listSteps(ctx context.Context, q querier, projectID int64) ([]domain.WorkflowStep, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT `+stepColumns+` FROM workflow_steps WHERE project_id=? ORDER BY step_no ASC`), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkflowStep
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListStepViews joins each step with its template's display fields.
func (r Repo) ListStepViews(ctx context.Context, projectID int64) ([]domain.StepView, error) {
	rows, err := r.DB.QueryContext(ctx, r.bind(`SELECT s.id,s.project_id,s.step_no,s.template_id,s.notes,s.status,s.estimated_hours,s.actual_hours,s.completed_at,s.created_at,s.updated_at,
COALESCE(t.title,''),COALESCE(t.description,'')
FROM workflow_steps s LEFT JOIN workflow_templates t ON t.id=s.template_id
WHERE s.project_id=? ORDER BY s.step_no ASC`), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StepView{}
	for rows.Next() {
		var v domain.StepView
		var title, desc string
		s, err := scanStep(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &title, &desc)...)
		}))
		if err != nil {
			return nil, err
		}
		v.WorkflowStep = s
		v.TemplateTitle = title
		v.TemplateDescription = desc
		res = append(res, v)
	}
	return res, rows.Err()
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// UpdateStepSpec rewrites the caller-owned fields of a step, leaving its completion state alone.
func (r Repo) UpdateStepSpec(ctx context.Context, tx *sql.Tx, id int64, spec domain.StepSpec, now time.Time) error {
	res, err := tx.ExecContext(ctx, r.bind(`UPDATE workflow_steps SET template_id=?, notes=?, estimated_hours=?, updated_at=? WHERE id=?`),
		spec.TemplateID, nullable(spec.Notes), spec.EstimatedHours, formatTS(now), id)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

func (r Repo) DeleteStep(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, r.bind(`DELETE FROM workflow_steps WHERE id=?`), id)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

// MarkStepCompleted moves a pending step to completed. A step that is already
// completed is left untouched and reported as ErrNoRowsAffected.
func (r Repo) MarkStepCompleted(ctx context.Context, tx *sql.Tx, id int64, actualHours int, at time.Time) error {
	ts := formatTS(at)
	res, err := tx.ExecContext(ctx, r.bind(`UPDATE workflow_steps SET status=?, actual_hours=?, completed_at=?, updated_at=? WHERE id=? AND status=?`),
		domain.StepCompleted, actualHours, ts, ts, id, domain.StepPending)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

func (r Repo) UpdateStepNotes(ctx context.Context, tx *sql.Tx, id int64, notes string, now time.Time) error {
	res, err := tx.ExecContext(ctx, r.bind(`UPDATE workflow_steps SET notes=?, updated_at=? WHERE id=?`), nullable(notes), formatTS(now), id)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

// CountSteps counts completed and total steps of a project from the store.
func (r Repo) CountSteps(ctx context.Context, tx *sql.Tx, projectID int64) (completed, total int, err error) {
	err = r.on(tx).QueryRowContext(ctx, r.bind(`SELECT COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END),0), COUNT(*) FROM workflow_steps WHERE project_id=?`),
		domain.StepCompleted, projectID).Scan(&completed, &total)
	return completed, total, err
}

// SumEstimatedHours sums the estimates of a project's current steps.
func (r Repo) SumEstimatedHours(ctx context.Context, tx *sql.Tx, projectID int64) (int, error) {
	var sum int
	err := r.on(tx).QueryRowContext(ctx, r.bind(`SELECT COALESCE(SUM(estimated_hours),0) FROM workflow_steps WHERE project_id=?`), projectID).Scan(&sum)
	return sum, err
}

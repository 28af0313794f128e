package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tailorline/internal/domain"
)

const projectColumns = `id,order_id,customer_id,tailor_id,description,deadline,rush,instructions,estimated_hours,status,progress,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var desc, instructions sql.NullString
	var deadline, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.TailorID, &desc, &deadline, &p.Rush, &instructions,
		&p.EstimatedHours, &p.Status, &p.Progress, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Description = desc.String
	p.Instructions = instructions.String
	if p.Deadline, err = parseTS(deadline); err != nil {
		return p, fmt.Errorf("project %d deadline: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTS(createdAt); err != nil {
		return p, fmt.Errorf("project %d created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return p, fmt.Errorf("project %d updated_at: %w", p.ID, err)
	}
	return p, nil
}

// InsertProject stores the header and returns the assigned id.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	return r.insertReturningID(ctx, tx, `INSERT INTO projects(order_id,customer_id,tailor_id,description,deadline,rush,instructions,estimated_hours,status,progress,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.OrderID, p.CustomerID, p.TailorID, nullable(p.Description), formatTS(p.Deadline), p.Rush, nullable(p.Instructions),
		p.EstimatedHours, p.Status, p.Progress, formatTS(p.CreatedAt), formatTS(p.UpdatedAt))
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, r.bind(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, r.bind(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id))
}

// LockProject reads the project row and holds its write lock until tx ends.
func (r Repo) LockProject(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, r.bind(`SELECT `+projectColumns+` FROM projects WHERE id=?`+r.Dialect.ForUpdate()), id))
}

// ProjectHeaderUpdate carries the header fields to change; nil means unchanged.
type ProjectHeaderUpdate struct {
	Description  *string
	Deadline     *time.Time
	Rush         *bool
	Instructions *string
	TailorID     *int64
}

func (u ProjectHeaderUpdate) Empty() bool {
	return u.Description == nil && u.Deadline == nil && u.Rush == nil && u.Instructions == nil && u.TailorID == nil
}

// UpdateProjectHeader writes the supplied fields. ErrNoRowsAffected means the row vanished.
func (r Repo) UpdateProjectHeader(ctx context.Context, tx *sql.Tx, id int64, u ProjectHeaderUpdate, now time.Time) error {
	var (
		fields []string
		args   []any
	)
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.Deadline != nil {
		fields = append(fields, "deadline=?")
		args = append(args, formatTS(*u.Deadline))
	}
	if u.Rush != nil {
		fields = append(fields, "rush=?")
		args = append(args, *u.Rush)
	}
	if u.Instructions != nil {
		fields = append(fields, "instructions=?")
		args = append(args, nullable(*u.Instructions))
	}
	if u.TailorID != nil {
		fields = append(fields, "tailor_id=?")
		args = append(args, *u.TailorID)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, formatTS(now), id)
	res, err := r.on(tx).ExecContext(ctx, r.bind(fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ","))), args...)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

func (r Repo) SetEstimatedHours(ctx context.Context, tx *sql.Tx, id int64, hours int, now time.Time) error {
	res, err := tx.ExecContext(ctx, r.bind(`UPDATE projects SET estimated_hours=?, updated_at=? WHERE id=?`), hours, formatTS(now), id)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

func (r Repo) SetProjectProgress(ctx context.Context, tx *sql.Tx, id int64, status string, progress int, now time.Time) error {
	res, err := tx.ExecContext(ctx, r.bind(`UPDATE projects SET status=?, progress=?, updated_at=? WHERE id=?`), status, progress, formatTS(now), id)
	if err != nil {
		return err
	}
	return exactlyOne(res)
}

type ProjectFilters struct {
	Status   string
	TailorID int64
	Limit    int
	Offset   int
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.TailorID != 0 {
		clauses = append(clauses, "tailor_id=?")
		args = append(args, f.TailorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

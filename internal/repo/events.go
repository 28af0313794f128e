package repo

import (
	"context"
	"database/sql"

	"tailorline/internal/domain"
)

// LatestEvents returns the newest events of a project, newest first.
func (r Repo) LatestEvents(ctx context.Context, projectID int64, limit int, evtType string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE project_id=?`
	args := []any{projectID}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var pid sql.NullInt64
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &pid, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		if pid.Valid {
			e.ProjectID = &pid.Int64
		}
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tailorline/internal/db"
)

const (
	ProjectCreated    = "project.created"
	ProjectUpdated    = "project.updated"
	StepCompleted     = "step.completed"
	StepNotesUpdated  = "step.notes.updated"
	EntityProject     = "project"
	EntityStep        = "workflow_step"
	defaultActorLabel = "system"
)

type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append writes an event row inside tx so it commits or rolls back with the change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType string, projectID int64, entityKind string, entityID int64, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if actorID == "" {
		actorID = defaultActorLabel
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		ts, evtType, projectID, entityKind, fmt.Sprint(entityID), actorID, string(data))
	return err
}

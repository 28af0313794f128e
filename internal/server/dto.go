package server

import (
	"encoding/json"
	"time"

	"tailorline/internal/domain"
	"tailorline/internal/engine"
)

// Request payloads

type StepRequest struct {
	StepNo         int    `json:"step_no" doc:"Position in the workflow; step N can only be completed after step N-1"`
	TemplateID     int64  `json:"template_id"`
	Notes          string `json:"notes,omitempty"`
	EstimatedHours int    `json:"estimated_hours"`
}

type CreateProjectRequest struct {
	OrderID      int64         `json:"order_id"`
	CustomerID   int64         `json:"customer_id"`
	TailorID     int64         `json:"tailor_id"`
	Description  string        `json:"description,omitempty"`
	Deadline     time.Time     `json:"deadline" format:"date-time"`
	Rush         bool          `json:"rush,omitempty"`
	Instructions string        `json:"instructions,omitempty"`
	Steps        []StepRequest `json:"steps"`
}

type UpdateProjectRequest struct {
	Description  *string    `json:"description,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty" format:"date-time"`
	Rush         *bool      `json:"rush,omitempty"`
	Instructions *string    `json:"instructions,omitempty"`
	TailorID     *int64     `json:"tailor_id,omitempty"`
	// Steps replaces the whole step list; omit it to keep the current steps.
	Steps []StepRequest `json:"steps,omitempty"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// Response payloads

type CreateProjectResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type UpdateProjectResponse struct {
	Message string           `json:"message"`
	Steps   *engine.StepSync `json:"steps,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  *int64         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func stepSpecs(in []StepRequest) []domain.StepSpec {
	if in == nil {
		return nil
	}
	out := make([]domain.StepSpec, len(in))
	for i, s := range in {
		out[i] = domain.StepSpec{
			StepNo:         s.StepNo,
			TemplateID:     s.TemplateID,
			Notes:          s.Notes,
			EstimatedHours: s.EstimatedHours,
		}
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

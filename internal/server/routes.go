package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tailorline/internal/domain"
	"tailorline/internal/engine"
	"tailorline/internal/repo"
)

func registerProjects(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project with its workflow steps",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body CreateProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		p, err := h.e.CreateProject(ctx, engine.ProjectCreateOptions{
			OrderID:      b.OrderID,
			CustomerID:   b.CustomerID,
			TailorID:     b.TailorID,
			Description:  b.Description,
			Deadline:     b.Deadline,
			Rush:         b.Rush,
			Instructions: b.Instructions,
			Steps:        stepSpecs(b.Steps),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body CreateProjectResponse `json:"body"`
		}{Body: CreateProjectResponse{ID: p.ID, Message: fmt.Sprintf("project %d created with %d steps", p.ID, len(b.Steps))}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"pending,in-progress,completed"`
		TailorID int64  `query:"tailor_id"`
		Limit    int    `query:"limit" default:"50"`
		Offset   int    `query:"offset"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := h.e.ListProjects(ctx, repo.ProjectFilters{
			Status:   input.Status,
			TailorID: input.TailorID,
			Limit:    normalizeLimit(input.Limit),
			Offset:   input.Offset,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project with steps, line items and progress metrics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body domain.ProjectView `json:"body"`
	}, error) {
		v, err := h.e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.ProjectView `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project header and synchronize steps",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body UpdateProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		applied, err := h.e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:           input.ProjectID,
			Description:  b.Description,
			Deadline:     b.Deadline,
			Rush:         b.Rush,
			Instructions: b.Instructions,
			TailorID:     b.TailorID,
			Steps:        stepSpecs(b.Steps),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		resp := UpdateProjectResponse{Message: fmt.Sprintf("project %d updated", input.ProjectID)}
		if b.Steps != nil {
			resp.Steps = &applied
		}
		return &struct {
			Body UpdateProjectResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerSteps(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-step",
		Method:      http.MethodPost,
		Path:        "/steps/{step_id}/complete",
		Summary:     "Complete a workflow step",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		StepID int64 `path:"step_id"`
	}) (*struct {
		Body engine.StepCompletion `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.e.CompleteStep(ctx, input.StepID, actorID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body engine.StepCompletion `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-step-notes",
		Method:      http.MethodPut,
		Path:        "/steps/{step_id}/notes",
		Summary:     "Replace the notes of a workflow step",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StepID int64              `path:"step_id"`
		Body   UpdateNotesRequest `json:"body"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.UpdateStepNotes(ctx, input.StepID, input.Body.Notes, actorID); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: fmt.Sprintf("notes of step %d updated", input.StepID)}}, nil
	})
}

func registerTemplates(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List workflow step templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Template `json:"body"`
	}, error) {
		items, err := h.e.ListTemplates(ctx)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.Template `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerEvents(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events of a project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := h.e.ProjectEvents(ctx, input.ProjectID, normalizeLimit(input.Limit), input.Type)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		resp := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			resp = append(resp, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

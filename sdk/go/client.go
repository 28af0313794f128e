package tailorlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tailorline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		ActorID:  actorID,
		Timeout:  10 * time.Second,
	}
}

type StepSpec struct {
	StepNo         int    `json:"step_no"`
	TemplateID     int64  `json:"template_id"`
	Notes          string `json:"notes,omitempty"`
	EstimatedHours int    `json:"estimated_hours"`
}

type CreateProjectRequest struct {
	OrderID      int64      `json:"order_id"`
	CustomerID   int64      `json:"customer_id"`
	TailorID     int64      `json:"tailor_id"`
	Description  string     `json:"description,omitempty"`
	Deadline     time.Time  `json:"deadline"`
	Rush         bool       `json:"rush,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Steps        []StepSpec `json:"steps"`
}

// UpdateProjectRequest leaves nil fields unchanged. A nil Steps keeps the
// current step list.
type UpdateProjectRequest struct {
	Description  *string    `json:"description,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Rush         *bool      `json:"rush,omitempty"`
	Instructions *string    `json:"instructions,omitempty"`
	TailorID     *int64     `json:"tailor_id,omitempty"`
	Steps        []StepSpec `json:"steps,omitempty"`
}

// Project represents the API project model (partial).
type Project struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	TailorID       int64     `json:"tailor_id"`
	Description    string    `json:"description"`
	Deadline       time.Time `json:"deadline"`
	Rush           bool      `json:"rush"`
	EstimatedHours int       `json:"estimated_hours"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
}

type Step struct {
	ID             int64      `json:"id"`
	StepNo         int        `json:"step_no"`
	TemplateID     int64      `json:"template_id"`
	TemplateTitle  string     `json:"template_title"`
	Notes          string     `json:"notes"`
	Status         string     `json:"status"`
	EstimatedHours int        `json:"estimated_hours"`
	ActualHours    *int       `json:"actual_hours"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// ProjectView is a project with its steps and derived metrics.
type ProjectView struct {
	Project
	Customer struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"customer"`
	Tailor struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"tailor"`
	Steps              []Step `json:"steps"`
	StepsCompleted     int    `json:"steps_completed"`
	TotalSteps         int    `json:"total_steps"`
	DaysRemaining      int    `json:"days_remaining"`
	ActualProjectHours int    `json:"actual_project_hours"`
	TimeEfficiency     int    `json:"time_efficiency"`
}

type StepSync struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}

type Completion struct {
	Message     string `json:"message"`
	StepID      int64  `json:"step_id"`
	StepNo      int    `json:"step_no"`
	ProjectID   int64  `json:"project_id"`
	ActualHours int    `json:"actual_hours"`
	Progress    int    `json:"progress"`
	Status      string `json:"status"`
}

type Template struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  int64          `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project and returns its id.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "projects", req, &resp)
	return resp.ID, err
}

func (c *Client) GetProject(ctx context.Context, id int64) (ProjectView, error) {
	var resp ProjectView
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%d", id), nil, &resp)
	return resp, err
}

// ListProjects lists projects, optionally filtered by status.
func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateProject applies a partial update; the result is zero when no steps were supplied.
func (c *Client) UpdateProject(ctx context.Context, id int64, req UpdateProjectRequest) (StepSync, error) {
	var resp struct {
		Steps *StepSync `json:"steps"`
	}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("projects/%d", id), req, &resp); err != nil {
		return StepSync{}, err
	}
	if resp.Steps == nil {
		return StepSync{}, nil
	}
	return *resp.Steps, nil
}

func (c *Client) CompleteStep(ctx context.Context, stepID int64) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("steps/%d/complete", stepID), nil, &resp)
	return resp, err
}

func (c *Client) UpdateStepNotes(ctx context.Context, stepID int64, notes string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("steps/%d/notes", stepID), map[string]string{"notes": notes}, nil)
}

func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, "templates", nil, &resp)
	return resp, err
}

// Events returns the latest events of a project, newest first.
func (c *Client) Events(ctx context.Context, projectID int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("projects/%d/events", projectID)
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}

package domain

import "time"

const (
	ProjectPending    = "pending"
	ProjectInProgress = "in-progress"
	ProjectCompleted  = "completed"

	StepPending   = "pending"
	StepCompleted = "completed"
)

type Project struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	CustomerID     int64     `json:"customer_id"`
	TailorID       int64     `json:"tailor_id"`
	Description    string    `json:"description,omitempty"`
	Deadline       time.Time `json:"deadline" format:"date-time"`
	Rush           bool      `json:"rush"`
	Instructions   string    `json:"instructions,omitempty"`
	EstimatedHours int       `json:"estimated_hours"`
	Status         string    `json:"status" enum:"pending,in-progress,completed"`
	Progress       int       `json:"progress"`
	CreatedAt      time.Time `json:"created_at" format:"date-time"`
	UpdatedAt      time.Time `json:"updated_at" format:"date-time"`
}

type WorkflowStep struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	StepNo         int        `json:"step_no"`
	TemplateID     int64      `json:"template_id"`
	Notes          string     `json:"notes,omitempty"`
	Status         string     `json:"status" enum:"pending,completed"`
	EstimatedHours int        `json:"estimated_hours"`
	ActualHours    *int       `json:"actual_hours,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt      time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt      time.Time  `json:"updated_at" format:"date-time"`
}

// StepSpec is the caller-supplied shape of a step on create and update.
type StepSpec struct {
	StepNo         int    `json:"step_no" yaml:"step_no"`
	TemplateID     int64  `json:"template_id" yaml:"template_id"`
	Notes          string `json:"notes,omitempty" yaml:"notes"`
	EstimatedHours int    `json:"estimated_hours" yaml:"estimated_hours"`
}

type Template struct {
	ID          int64  `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type Customer struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Staff struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	SkillLevel string `json:"skill_level,omitempty" yaml:"skill_level"`
}

type Order struct {
	ID        int64  `json:"id" yaml:"id"`
	Reference string `json:"reference,omitempty" yaml:"reference"`
}

type Measurement struct {
	ID     int64   `json:"id" yaml:"id"`
	ItemID int64   `json:"item_id" yaml:"item_id"`
	Name   string  `json:"name" yaml:"name"`
	Value  float64 `json:"value" yaml:"value"`
	Unit   string  `json:"unit,omitempty" yaml:"unit"`
}

type CustomOrderItem struct {
	ID           int64         `json:"id" yaml:"id"`
	OrderID      int64         `json:"order_id" yaml:"order_id"`
	GarmentType  string        `json:"garment_type" yaml:"garment_type"`
	Fabric       string        `json:"fabric,omitempty" yaml:"fabric"`
	Quantity     int           `json:"quantity" yaml:"quantity"`
	Notes        string        `json:"notes,omitempty" yaml:"notes"`
	Measurements []Measurement `json:"measurements" yaml:"measurements"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// StepView is a step joined with its template for display.
type StepView struct {
	WorkflowStep
	TemplateTitle       string `json:"template_title"`
	TemplateDescription string `json:"template_description,omitempty"`
}

// ProjectView is the projected read model of a project.
type ProjectView struct {
	Project
	Customer           Customer          `json:"customer"`
	Tailor             Staff             `json:"tailor"`
	Steps              []StepView        `json:"steps"`
	Items              []CustomOrderItem `json:"items"`
	StepsCompleted     int               `json:"steps_completed"`
	TotalSteps         int               `json:"total_steps"`
	DaysRemaining      int               `json:"days_remaining"`
	ActualProjectHours int               `json:"actual_project_hours"`
	TimeEfficiency     int               `json:"time_efficiency"`
}

// Package taskqueue implements the Human Task Queue (§4.6): a durable
// priority queue of suspended human activities, with a pluggable storage
// adapter behind a fixed interface (§5 "Task-store adapter").
package taskqueue

import "time"

// Status is a Human Task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

// Priority orders pending-by-role listing (§4.6): critical > high > normal > low.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank gives each priority a sortable weight, higher first.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	}
	return -1
}

// HumanTask is the persistent record of a suspended human activity (§3).
type HumanTask struct {
	ID           string
	ActivityID   string
	ActivityName string
	TokenID      string
	WorkflowID   string
	Status       Status
	Priority     Priority
	RoleID       string
	AssigneeID   string
	CreatedBy    string
	AssignedBy   string

	Inputs  map[string]interface{}
	Outputs map[string]interface{}

	FormSchema map[string]interface{}
	Tags       []string

	CreatedAt time.Time
	UpdatedAt time.Time
	DueAt     *time.Time
}

// IsOverdue reports whether the task's due_at has passed as of now.
func (t *HumanTask) IsOverdue(now time.Time) bool {
	return t.DueAt != nil && now.After(*t.DueAt)
}

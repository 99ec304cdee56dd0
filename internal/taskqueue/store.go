package taskqueue

import (
	"context"
	"time"
)

// Filters narrows List/PendingByRole queries.
type Filters struct {
	WorkflowID string
	RoleID     string
	AssigneeID string
	Status     Status
}

// Store is the pluggable Task-store adapter (§5): CRUD on Human Tasks plus
// atomic status transitions plus priority-ordered listing by role. The
// core engine only ever talks to this interface; MemoryStore and
// PostgresStore are the two concrete adapters this module ships.
type Store interface {
	Create(ctx context.Context, task *HumanTask) error
	Get(ctx context.Context, id string) (*HumanTask, error)
	List(ctx context.Context, filters Filters) ([]*HumanTask, error)
	Assign(ctx context.Context, id, userID, assignedBy string) error
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, outputs map[string]interface{}) error
	Reject(ctx context.Context, id string, reason string) error
	// Expire forces a single task straight to expired, used when the engine
	// cancels the run that owns it (§4.7).
	Expire(ctx context.Context, id string) error
	PendingByRole(ctx context.Context, roleID string) ([]*HumanTask, error)
	// ExpireOverdue transitions every pending/assigned/in_progress task past
	// its due_at to expired (§4.6 "pending → expired when due_at passes"),
	// returning the tasks that were expired.
	ExpireOverdue(ctx context.Context, now time.Time) ([]*HumanTask, error)
}

// validTransition enforces the state machine of §4.6 literally:
// pending -> assigned -> in_progress -> (completed | rejected)
// pending -> expired
// any active state -> expired (SLA breach, or cancellation per §4.7)
// "Any other transition fails" (§4.6) — completed/rejected are reachable
// only from in_progress; there is no early-reject shortcut from
// pending/assigned.
func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusAssigned || to == StatusExpired
	case StatusAssigned:
		return to == StatusInProgress || to == StatusExpired
	case StatusInProgress:
		return to == StatusCompleted || to == StatusRejected || to == StatusExpired
	default:
		return false
	}
}

func byPriorityThenAge(tasks []*HumanTask) func(i, j int) bool {
	return func(i, j int) bool {
		pi, pj := tasks[i].Priority.rank(), tasks[j].Priority.rank()
		if pi != pj {
			return pi > pj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	}
}

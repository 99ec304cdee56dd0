package actor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
	"github.com/lyzr/workflow-engine/internal/token"
)

// HumanStrategy enqueues a Human Task and suspends the token (§4.5, §4.6).
// The engine is responsible for moving the token to "waiting" on a
// StatusSuspend outcome.
type HumanStrategy struct {
	store     taskqueue.Store
	createdBy string
}

// NewHumanStrategy creates a human strategy backed by a Task-store adapter.
func NewHumanStrategy(store taskqueue.Store, createdBy string) *HumanStrategy {
	return &HumanStrategy{store: store, createdBy: createdBy}
}

func (s *HumanStrategy) Execute(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (Outcome, error) {
	rm := captureStart()

	inputs := make(map[string]interface{}, len(activity.Inputs))
	for _, key := range activity.Inputs {
		if v, ok := tok.Data[key]; ok {
			inputs[key] = v
		}
	}

	priority := taskqueue.Priority(activity.Priority)
	if priority == "" {
		priority = taskqueue.PriorityNormal
	}

	task := &taskqueue.HumanTask{
		ID:           uuid.NewString(),
		ActivityID:   activity.ID,
		ActivityName: activity.Name,
		TokenID:      tok.ID,
		WorkflowID:   tok.WorkflowID,
		Priority:     priority,
		RoleID:       activity.RoleID,
		CreatedBy:    s.createdBy,
		Inputs:       inputs,
		FormSchema:   activity.OutputSchema,
	}
	if activity.SLA != nil {
		due := rm.start.Add(activity.SLA.Deadline)
		task.DueAt = &due
	}

	if err := s.store.Create(ctx, task); err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("enqueue human task: %w", err)}, nil
	}

	return Outcome{Status: StatusSuspend, SuspensionHandle: task.ID, Metrics: rm.finalize()}, nil
}

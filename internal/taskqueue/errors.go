package taskqueue

import "fmt"

// TaskTransitionError reports an illegal Human Task status transition
// (§4.6: "Any other transition fails", surfaces as TaskTransitionError
// per §7).
type TaskTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *TaskTransitionError) Error() string {
	return fmt.Sprintf("task %q: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

// NotFoundError reports an operation against an unknown task id.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.TaskID)
}

package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation, suitable for tests
// and for single-run CLI execution (§6.1) where no Postgres is configured.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*HumanTask
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*HumanTask), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, task *HumanTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	task.UpdatedAt = task.CreatedAt
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*HumanTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &NotFoundError{TaskID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, filters Filters) ([]*HumanTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*HumanTask
	for _, t := range s.tasks {
		if filters.WorkflowID != "" && t.WorkflowID != filters.WorkflowID {
			continue
		}
		if filters.RoleID != "" && t.RoleID != filters.RoleID {
			continue
		}
		if filters.AssigneeID != "" && t.AssigneeID != filters.AssigneeID {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, byPriorityThenAge(out))
	return out, nil
}

func (s *MemoryStore) transition(id string, to Status, mutate func(*HumanTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return &NotFoundError{TaskID: id}
	}
	if t.Status == to {
		// Idempotent re-delivery of the same terminal transition is a
		// no-op success, matching the teacher's HITL worker idempotency
		// check on previous status before re-applying a response.
		return nil
	}
	if !validTransition(t.Status, to) {
		return &TaskTransitionError{TaskID: id, From: t.Status, To: to}
	}
	t.Status = to
	t.UpdatedAt = s.now()
	if mutate != nil {
		mutate(t)
	}
	return nil
}

func (s *MemoryStore) Assign(_ context.Context, id, userID, assignedBy string) error {
	return s.transition(id, StatusAssigned, func(t *HumanTask) {
		t.AssigneeID = userID
		t.AssignedBy = assignedBy
	})
}

func (s *MemoryStore) Start(_ context.Context, id string) error {
	return s.transition(id, StatusInProgress, nil)
}

func (s *MemoryStore) Complete(_ context.Context, id string, outputs map[string]interface{}) error {
	return s.transition(id, StatusCompleted, func(t *HumanTask) {
		t.Outputs = outputs
	})
}

func (s *MemoryStore) Reject(_ context.Context, id string, reason string) error {
	return s.transition(id, StatusRejected, func(t *HumanTask) {
		if t.Outputs == nil {
			t.Outputs = map[string]interface{}{}
		}
		t.Outputs["rejection_reason"] = reason
	})
}

func (s *MemoryStore) Expire(_ context.Context, id string) error {
	return s.transition(id, StatusExpired, nil)
}

func (s *MemoryStore) PendingByRole(ctx context.Context, roleID string) ([]*HumanTask, error) {
	return s.List(ctx, Filters{RoleID: roleID, Status: StatusPending})
}

func (s *MemoryStore) ExpireOverdue(_ context.Context, now time.Time) ([]*HumanTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*HumanTask
	for _, t := range s.tasks {
		if t.Status != StatusPending && t.Status != StatusAssigned && t.Status != StatusInProgress {
			continue
		}
		if !t.IsOverdue(now) {
			continue
		}
		t.Status = StatusExpired
		t.UpdatedAt = now
		cp := *t
		expired = append(expired, &cp)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	return expired, nil
}

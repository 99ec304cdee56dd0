package taskqueue

import (
	"context"
)

// Notifier publishes a task-completion event to an external channel, e.g.
// Redis pub/sub (SPEC_FULL §1.2 "task queue publishes a notification on
// task completion", grounded on the teacher's hitl_worker
// approval-response pattern). A nil Notifier disables mirroring.
type Notifier interface {
	NotifyTaskResolved(task *HumanTask)
}

// NotifyingStore decorates a Store, publishing to a Notifier whenever a
// task reaches a terminal outcome (completed/rejected) the engine's
// suspended token is waiting on. Wrapping rather than modifying
// MemoryStore/PostgresStore keeps the notification concern out of the two
// storage adapters entirely.
type NotifyingStore struct {
	Store
	notifier Notifier
}

// NewNotifyingStore wraps store so Complete/Reject also notify n.
func NewNotifyingStore(store Store, n Notifier) *NotifyingStore {
	return &NotifyingStore{Store: store, notifier: n}
}

func (s *NotifyingStore) Complete(ctx context.Context, id string, outputs map[string]interface{}) error {
	if err := s.Store.Complete(ctx, id, outputs); err != nil {
		return err
	}
	s.notify(ctx, id)
	return nil
}

func (s *NotifyingStore) Reject(ctx context.Context, id string, reason string) error {
	if err := s.Store.Reject(ctx, id, reason); err != nil {
		return err
	}
	s.notify(ctx, id)
	return nil
}

func (s *NotifyingStore) notify(ctx context.Context, id string) {
	if s.notifier == nil {
		return
	}
	task, err := s.Store.Get(ctx, id)
	if err != nil {
		return
	}
	s.notifier.NotifyTaskResolved(task)
}

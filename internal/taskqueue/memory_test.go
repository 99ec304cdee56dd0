package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDefaultsToPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	task := &HumanTask{ID: "t1", RoleID: "claims-adjuster", Priority: PriorityNormal}
	require.NoError(t, s.Create(ctx, task))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestPendingByRoleOrdersByPriorityThenAge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []*HumanTask{
		{ID: "low-older", RoleID: "r", Priority: PriorityLow, CreatedAt: base},
		{ID: "critical-newer", RoleID: "r", Priority: PriorityCritical, CreatedAt: base.Add(time.Hour)},
		{ID: "normal-oldest", RoleID: "r", Priority: PriorityNormal, CreatedAt: base.Add(-time.Hour)},
		{ID: "critical-older", RoleID: "r", Priority: PriorityCritical, CreatedAt: base},
	}
	for _, tk := range tasks {
		require.NoError(t, s.Create(ctx, tk))
	}

	got, err := s.PendingByRole(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 4)
	ids := make([]string, len(got))
	for i, tk := range got {
		ids[i] = tk.ID
	}
	assert.Equal(t, []string{"critical-older", "critical-newer", "normal-oldest", "low-older"}, ids)
}

func TestStatusTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &HumanTask{ID: "t1", RoleID: "r"}))

	require.NoError(t, s.Assign(ctx, "t1", "user-1", "manager-1"))
	require.NoError(t, s.Start(ctx, "t1"))
	require.NoError(t, s.Complete(ctx, "t1", map[string]interface{}{"approved": true}))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, true, got.Outputs["approved"])
}

func TestIllegalTransitionFails(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &HumanTask{ID: "t1", RoleID: "r"}))

	err := s.Start(ctx, "t1") // pending -> in_progress skips assigned
	require.Error(t, err)
	var transErr *TaskTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestCompleteIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &HumanTask{ID: "t1", RoleID: "r"}))
	require.NoError(t, s.Assign(ctx, "t1", "u", "m"))
	require.NoError(t, s.Start(ctx, "t1"))
	require.NoError(t, s.Complete(ctx, "t1", map[string]interface{}{"x": 1}))

	// Re-delivery of the same completion is a no-op success, not an error.
	err := s.Complete(ctx, "t1", map[string]interface{}{"x": 1})
	assert.NoError(t, err)
}

func TestExpireOverdueTransitionsPastDueTasks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(ctx, &HumanTask{ID: "t1", RoleID: "r", DueAt: &past}))

	expired, err := s.ExpireOverdue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, StatusExpired, expired[0].Status)
}

func TestGetUnknownTaskReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

package actor

import (
	"context"
	"testing"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
	"github.com/lyzr/workflow-engine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanStrategySuspendsAndEnqueues(t *testing.T) {
	store := taskqueue.NewMemoryStore()
	strategy := NewHumanStrategy(store, "system")

	activity := &graph.Activity{
		ID:        "approve-claim",
		Name:      "Approve Claim",
		ActorType: graph.ActorHuman,
		RoleID:    "claims-adjuster",
		Priority:  "high",
		Inputs:    []string{"claim_amount"},
	}
	tok := token.New("wf-1", "approve-claim", map[string]interface{}{"claim_amount": 1200})

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspend, outcome.Status)
	require.NotEmpty(t, outcome.SuspensionHandle)

	task, err := store.Get(context.Background(), outcome.SuspensionHandle)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, task.Status)
	assert.Equal(t, taskqueue.PriorityHigh, task.Priority)
	assert.Equal(t, 1200, task.Inputs["claim_amount"])
}

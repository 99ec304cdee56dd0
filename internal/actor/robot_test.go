package actor

import (
	"context"
	"testing"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobotStrategySimulatesWithoutEndpoint(t *testing.T) {
	strategy := NewRobotStrategy("", nil)
	activity := &graph.Activity{
		ID:        "a1",
		ActorType: graph.ActorRobot,
		OutputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"moved": map[string]interface{}{"type": "boolean"}},
		},
	}
	tok := token.New("wf-1", "a1", nil)

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Equal(t, false, outcome.Outputs["moved"])
	assert.Equal(t, true, outcome.Metrics["simulated"])
	assert.Contains(t, outcome.Metrics, "estimated_duration_ms")
}

package actor

import (
	"context"
	"testing"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIAgentStrategySimulatesWithoutCredential(t *testing.T) {
	t.Setenv(geminiAPIKeyEnv, "")
	strategy := NewAIAgentStrategy()

	activity := &graph.Activity{
		ID:          "a1",
		ActorType:   graph.ActorAIAgent,
		Description: "Assess claim risk",
		Inputs:      []string{"claim_amount"},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"risk_score": map[string]interface{}{"type": "number"},
				"approved":   map[string]interface{}{"type": "boolean"},
			},
		},
	}
	tok := token.New("wf-1", "a1", map[string]interface{}{"claim_amount": 500})

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Contains(t, outcome.Outputs, "risk_score")
	assert.Contains(t, outcome.Outputs, "approved")
	assert.Equal(t, true, outcome.Metrics["simulated"])
}

func TestAIAgentStrategyUsesInjectedClient(t *testing.T) {
	strategy := &AIAgentStrategy{client: stubGenerativeClient{response: `{"decision":"approve"}`}}
	activity := &graph.Activity{ID: "a1", Description: "decide", OutputSchema: map[string]interface{}{"type": "object"}}
	tok := token.New("wf-1", "a1", nil)

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", outcome.Outputs["decision"])
	assert.Equal(t, false, outcome.Metrics["simulated"])
}

type stubGenerativeClient struct {
	response string
	err      error
}

func (s stubGenerativeClient) Generate(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

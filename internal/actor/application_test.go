package actor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationStrategyCodeRunner(t *testing.T) {
	runners := map[string]ProgramRunner{
		"double": func(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (map[string]interface{}, error) {
			amount, _ := tok.Data["amount"].(int)
			return map[string]interface{}{"doubled": amount * 2}, nil
		},
	}
	strategy := NewApplicationStrategy(runners, nil)

	activity := &graph.Activity{ID: "a1", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "double"}}}
	tok := token.New("wf-1", "a1", map[string]interface{}{"amount": 5})

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Equal(t, 10, outcome.Outputs["doubled"])
}

func TestApplicationStrategyMCPTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]interface{}{"echoed": in["amount"]})
	}))
	defer server.Close()

	// The egress check rejects loopback refs such as server.URL, so the ref
	// names a public address and the client dials the test server instead.
	target := server.Listener.Addr().String()
	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, target)
		},
	}}
	strategy := NewApplicationStrategy(nil, client)
	activity := &graph.Activity{ID: "a1", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "mcp_tool", Ref: "http://203.0.113.10/tool"}}}
	tok := token.New("wf-1", "a1", map[string]interface{}{"amount": float64(7)})

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Equal(t, float64(7), outcome.Outputs["echoed"])
}

func TestApplicationStrategyNoProgramsFails(t *testing.T) {
	strategy := NewApplicationStrategy(nil, nil)
	activity := &graph.Activity{ID: "a1", ActorType: graph.ActorApplication}
	tok := token.New("wf-1", "a1", nil)

	outcome, err := strategy.Execute(context.Background(), activity, tok, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Error(t, outcome.Err)
}

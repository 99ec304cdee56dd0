package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lyzr/workflow-engine/internal/actor"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
	"github.com/lyzr/workflow-engine/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopRunner(outputs map[string]interface{}) actor.ProgramRunner {
	return func(ctx context.Context, activity *graph.Activity, tok *token.Token, view *actor.ContextView) (map[string]interface{}, error) {
		return outputs, nil
	}
}

func noSleep(time.Duration) {}

func newTestEngine(t *testing.T, doc *graph.Document, runners map[string]actor.ProgramRunner, opts Options) *Engine {
	t.Helper()
	wf, err := graph.Load(doc)
	require.NoError(t, err)

	opts.ProgramRunners = runners
	e, err := New(wf, opts)
	require.NoError(t, err)
	e.sleep = noSleep
	return e
}

// 1. Linear application flow: A -> B -> C, no contexts.
func TestLinearApplicationFlow(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-linear",
		Activities: []graph.Activity{
			{ID: "A", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "A"}}},
			{ID: "B", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "B"}}},
			{ID: "C", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "C"}}},
		},
		Events: []graph.Event{{ID: "end", Kind: graph.EventEnd}},
		Edges: []graph.Edge{
			{ID: "e1", SourceID: "A", TargetID: "B"},
			{ID: "e2", SourceID: "B", TargetID: "C"},
			{ID: "e3", SourceID: "C", TargetID: "end"},
		},
	}
	runners := map[string]actor.ProgramRunner{
		"A": noopRunner(nil), "B": noopRunner(nil), "C": noopRunner(nil),
	}
	e := newTestEngine(t, doc, runners, Options{})

	_, err := e.Start(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	require.NoError(t, e.RunToQuiescence(context.Background()))

	assert.Equal(t, "completed", e.Status())
	toks := e.Tokens()
	require.Len(t, toks, 1)
	var nodes []string
	for _, h := range toks[0].History {
		nodes = append(nodes, h.NodeID+":"+string(h.Action))
	}
	assert.Contains(t, nodes, "A:created")
	assert.Contains(t, nodes, "A:exited")
	assert.Contains(t, nodes, "B:entered")
	assert.Contains(t, nodes, "C:exited")
}

// 2. Decision routing — first.
func TestDecisionRoutingFirst(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-decision-first",
		DecisionNodes: []graph.DecisionNode{{
			ID: "risk", Table: graph.DecisionTable{
				Inputs: []string{"risk_score"}, Outputs: []string{"route"}, HitPolicy: graph.HitFirst,
				Rules: []graph.Rule{
					{InputEntries: []graph.RuleEntry{{Expression: "< 30"}}, OutputEntries: []graph.RuleEntry{{Expression: `"ok"`}}},
					{InputEntries: []graph.RuleEntry{{Expression: "-"}}, OutputEntries: []graph.RuleEntry{{Expression: `"reject"`}}},
				},
			},
		}},
		Events: []graph.Event{{ID: "ok_end", Kind: graph.EventEnd}, {ID: "reject_end", Kind: graph.EventEnd}},
		Edges: []graph.Edge{
			{ID: "edge_ok", SourceID: "risk", TargetID: "ok_end", Condition: `route = "ok"`},
			{ID: "edge_reject", SourceID: "risk", TargetID: "reject_end", Condition: `route = "reject"`, IsDefault: true},
		},
	}

	t.Run("low score follows ok edge", func(t *testing.T) {
		e := newTestEngine(t, doc, nil, Options{})
		_, err := e.Start(context.Background(), map[string]interface{}{"risk_score": 15})
		require.NoError(t, err)
		require.NoError(t, e.RunToQuiescence(context.Background()))
		assert.Equal(t, "completed", e.Status())
		assert.Equal(t, "ok_end", e.Tokens()[0].CurrentNodeID)
	})

	t.Run("high score follows reject edge", func(t *testing.T) {
		e := newTestEngine(t, doc, nil, Options{})
		_, err := e.Start(context.Background(), map[string]interface{}{"risk_score": 80})
		require.NoError(t, err)
		require.NoError(t, e.RunToQuiescence(context.Background()))
		assert.Equal(t, "completed", e.Status())
		assert.Equal(t, "reject_end", e.Tokens()[0].CurrentNodeID)
	})
}

// 3. Decision routing — unique ambiguity.
func TestDecisionRoutingUniqueAmbiguityFailsToken(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-decision-unique",
		DecisionNodes: []graph.DecisionNode{{
			ID: "risk", Table: graph.DecisionTable{
				Inputs: []string{"risk_score"}, Outputs: []string{"route"}, HitPolicy: graph.HitUnique,
				Rules: []graph.Rule{
					{InputEntries: []graph.RuleEntry{{Expression: "< 60"}}, OutputEntries: []graph.RuleEntry{{Expression: `"a"`}}},
					{InputEntries: []graph.RuleEntry{{Expression: ">= 40"}}, OutputEntries: []graph.RuleEntry{{Expression: `"b"`}}},
				},
			},
		}},
		Events: []graph.Event{{ID: "end", Kind: graph.EventEnd}},
		Edges:  []graph.Edge{{ID: "e1", SourceID: "risk", TargetID: "end"}},
	}
	e := newTestEngine(t, doc, nil, Options{})
	_, err := e.Start(context.Background(), map[string]interface{}{"risk_score": 50})
	require.NoError(t, err)
	require.NoError(t, e.RunToQuiescence(context.Background()))

	assert.Equal(t, "failed", e.Status())
	require.Len(t, e.Tokens(), 1)
	assert.Equal(t, token.StatusFailed, e.Tokens()[0].Status)
}

// 4. Human task suspend/resume.
func TestHumanTaskSuspendResume(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-human",
		Activities: []graph.Activity{
			{ID: "intake", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "intake"}}},
			{ID: "qc_review", ActorType: graph.ActorHuman, RoleID: "qc", Priority: "high"},
			{ID: "finalize", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "finalize"}}},
		},
		Events: []graph.Event{{ID: "end", Kind: graph.EventEnd}},
		Edges: []graph.Edge{
			{ID: "e1", SourceID: "intake", TargetID: "qc_review"},
			{ID: "e2", SourceID: "qc_review", TargetID: "finalize"},
			{ID: "e3", SourceID: "finalize", TargetID: "end"},
		},
	}
	store := taskqueue.NewMemoryStore()
	runners := map[string]actor.ProgramRunner{"intake": noopRunner(nil), "finalize": noopRunner(nil)}
	e := newTestEngine(t, doc, runners, Options{TaskStore: store})

	ctx := context.Background()
	_, err := e.Start(ctx, map[string]interface{}{})
	require.NoError(t, err)
	require.NoError(t, e.RunToQuiescence(ctx))
	assert.Equal(t, "waiting", e.Status())

	pending, err := store.PendingByRole(ctx, "qc")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	task := pending[0]
	assert.Equal(t, taskqueue.PriorityHigh, task.Priority)

	require.NoError(t, store.Assign(ctx, task.ID, "alice", "system"))
	require.NoError(t, store.Start(ctx, task.ID))
	require.NoError(t, store.Complete(ctx, task.ID, map[string]interface{}{"approved": true}))

	require.NoError(t, e.ResumeHumanTask(ctx, task.ID))
	require.NoError(t, e.RunToQuiescence(ctx))

	assert.Equal(t, "completed", e.Status())
	assert.Equal(t, true, e.Tokens()[0].Data["approved"])
}

// 5. Parallel fork/join with shared context.
func TestParallelForkJoinSharedContext(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-fork-join",
		Activities: []graph.Activity{
			{ID: "split", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "split"}}},
			{
				ID: "left", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "left"}},
				ContextBindings: []graph.ContextBinding{{ContextID: "shared", Access: graph.AccessWrite}},
			},
			{
				ID: "right", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "right"}},
				ContextBindings: []graph.ContextBinding{{ContextID: "shared", Access: graph.AccessWrite}},
			},
			{ID: "join", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "join"}}},
		},
		Events: []graph.Event{{ID: "end", Kind: graph.EventEnd}},
		Contexts: []graph.Context{
			{ID: "shared", Type: graph.ContextData, SyncPattern: graph.SyncSharedState, Lifecycle: graph.LifecycleEphemeral},
		},
		Edges: []graph.Edge{
			{ID: "to_left", SourceID: "split", TargetID: "left", Condition: "-"},
			{ID: "to_right", SourceID: "split", TargetID: "right", Condition: "-"},
			{ID: "left_to_join", SourceID: "left", TargetID: "join"},
			{ID: "right_to_join", SourceID: "right", TargetID: "join"},
			{ID: "join_to_end", SourceID: "join", TargetID: "end"},
		},
	}
	runners := map[string]actor.ProgramRunner{
		"split": noopRunner(nil),
		"left":  noopRunner(map[string]interface{}{"left_done": true}),
		"right": noopRunner(map[string]interface{}{"right_done": true}),
		"join":  noopRunner(nil),
	}
	e := newTestEngine(t, doc, runners, Options{})

	ctx := context.Background()
	_, err := e.Start(ctx, map[string]interface{}{})
	require.NoError(t, err)
	require.NoError(t, e.RunToQuiescence(ctx))

	assert.Equal(t, "completed", e.Status())
	require.Len(t, e.Tokens(), 3) // split/join parent + 2 forked children
	assert.Equal(t, true, e.Tokens()[0].Data != nil)

	sharedVal, err := e.store.Get("shared")
	require.NoError(t, err)
	sharedMap, ok := sharedVal.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, sharedMap["left_done"])
	assert.Equal(t, true, sharedMap["right_done"])

	var parent *token.Token
	for _, tok := range e.Tokens() {
		if tok.ParentTokenID == "" {
			parent = tok
		}
	}
	require.NotNil(t, parent)
	assert.Contains(t, parent.Data, "left_done")
	assert.Contains(t, parent.Data, "right_done")
}

// 6. Retry then compensation.
func TestRetryThenCompensation(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-retry-compensate",
		Activities: []graph.Activity{
			{
				ID: "flaky", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "flaky"}},
				RetryAttempts: 2, CompensateTo: "to_compensation",
			},
			{ID: "compensation", ActorType: graph.ActorApplication, Programs: []graph.Program{{Kind: "code", Ref: "compensation"}}},
		},
		Events: []graph.Event{{ID: "end", Kind: graph.EventEnd}},
		Edges: []graph.Edge{
			{ID: "to_compensation", SourceID: "flaky", TargetID: "compensation"},
			{ID: "comp_to_end", SourceID: "compensation", TargetID: "end"},
		},
	}
	dispatches := 0
	runners := map[string]actor.ProgramRunner{
		"flaky": func(ctx context.Context, activity *graph.Activity, tok *token.Token, view *actor.ContextView) (map[string]interface{}, error) {
			dispatches++
			return nil, errors.New("downstream unavailable")
		},
		"compensation": noopRunner(map[string]interface{}{"compensated": true}),
	}
	e := newTestEngine(t, doc, runners, Options{})

	ctx := context.Background()
	_, err := e.Start(ctx, map[string]interface{}{})
	require.NoError(t, err)
	require.NoError(t, e.RunToQuiescence(ctx))

	assert.Equal(t, 2, dispatches)
	assert.Equal(t, "completed", e.Status())
	assert.Equal(t, true, e.Tokens()[0].Data["compensated"])
}

func TestCancelMarksActiveTokensCancelled(t *testing.T) {
	doc := &graph.Document{
		ID: "wf-cancel",
		Activities: []graph.Activity{
			{ID: "wait_here", ActorType: graph.ActorHuman, RoleID: "ops"},
		},
		Events: []graph.Event{{ID: "end", Kind: graph.EventEnd}},
		Edges:  []graph.Edge{{ID: "e1", SourceID: "wait_here", TargetID: "end"}},
	}
	store := taskqueue.NewMemoryStore()
	e := newTestEngine(t, doc, nil, Options{TaskStore: store})

	ctx := context.Background()
	_, err := e.Start(ctx, map[string]interface{}{})
	require.NoError(t, err)
	require.NoError(t, e.RunToQuiescence(ctx))
	assert.Equal(t, "waiting", e.Status())

	require.NoError(t, e.Cancel(ctx))
	assert.Equal(t, "cancelled", e.Status())

	pending, err := store.List(ctx, taskqueue.Filters{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, taskqueue.StatusExpired, pending[0].Status)
}

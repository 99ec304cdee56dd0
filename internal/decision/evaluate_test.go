package decision

import (
	"testing"

	"github.com/lyzr/workflow-engine/internal/expr"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleTable(hitPolicy graph.HitPolicy, agg graph.Aggregator, rules ...graph.Rule) *graph.DecisionNode {
	return &graph.DecisionNode{
		ID: "tbl-1",
		Table: graph.DecisionTable{
			Inputs:     []string{"risk_score"},
			Outputs:    []string{"decision"},
			HitPolicy:  hitPolicy,
			Aggregator: agg,
			Rules:      rules,
		},
	}
}

func rule(inputExpr, outputExpr string, priority int, outputEdgeID string) graph.Rule {
	return graph.Rule{
		InputEntries:  []graph.RuleEntry{{Expression: inputExpr}},
		OutputEntries: []graph.RuleEntry{{Expression: outputExpr}},
		Priority:      priority,
		OutputEdgeID:  outputEdgeID,
	}
}

func TestUniqueHitPolicySingleMatch(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitUnique, graph.AggregatorNone,
		rule("< 50", "approve", 0, ""),
		rule(">= 50", "reject", 0, ""),
	)

	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	assert.Equal(t, "approve", res.Single["decision"])
}

func TestUniqueHitPolicyAmbiguousErrors(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitUnique, graph.AggregatorNone,
		rule("< 50", "approve", 0, ""),
		rule("< 100", "maybe", 0, ""),
	)

	_, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.Error(t, err)
	var decErr *DecisionError
	assert.ErrorAs(t, err, &decErr)
}

func TestFirstHitPolicyTakesFirstMatch(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitFirst, graph.AggregatorNone,
		rule("< 50", "approve", 0, ""),
		rule("< 100", "maybe", 0, ""),
	)

	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	assert.Equal(t, "approve", res.Single["decision"])
}

func TestPriorityHitPolicyPicksHighest(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitPriority, graph.AggregatorNone,
		rule("< 50", "low-priority-match", 1, ""),
		rule("< 100", "high-priority-match", 10, ""),
	)

	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	assert.Equal(t, "high-priority-match", res.Single["decision"])
}

func TestAnyHitPolicyRequiresAgreement(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitAny, graph.AggregatorNone,
		rule("< 50", "approve", 0, ""),
		rule("< 100", "approve", 0, ""),
	)
	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	assert.Equal(t, "approve", res.Single["decision"])

	disagreeing := ruleTable(graph.HitAny, graph.AggregatorNone,
		rule("< 50", "approve", 0, ""),
		rule("< 100", "reject", 0, ""),
	)
	_, err = ev.Evaluate(disagreeing, map[string]interface{}{"risk_score": 10})
	require.Error(t, err)
}

func TestCollectHitPolicyReturnsAllMatches(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitCollect, graph.AggregatorNone,
		rule("< 50", "1", 0, ""),
		rule("< 100", "2", 0, ""),
	)
	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestCollectHitPolicySumAggregation(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitCollect, graph.AggregatorSum,
		rule("< 50", "10", 0, ""),
		rule("< 100", "20", 0, ""),
	)
	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	assert.Equal(t, float64(30), res.Aggregated)
}

func TestRuleOrderHitPolicyPreservesDeclarationOrder(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitRuleOrder, graph.AggregatorNone,
		rule("< 100", "second-rule", 0, ""),
		rule("< 50", "first-rule", 0, ""),
	)
	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "second-rule", res.Rows[0]["decision"])
	assert.Equal(t, "first-rule", res.Rows[1]["decision"])
}

func TestNoMatchingRuleIsDecisionError(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitUnique, graph.AggregatorNone,
		rule("> 1000", "never", 0, ""),
	)
	_, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.Error(t, err)
	var decErr *DecisionError
	assert.ErrorAs(t, err, &decErr)
}

func TestOutputEdgeIDRoutedFromMatchedRule(t *testing.T) {
	ev := New(expr.NewEvaluator())
	node := ruleTable(graph.HitFirst, graph.AggregatorNone,
		rule("< 50", "approve", 0, "edge-approve"),
	)
	res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": 10})
	require.NoError(t, err)
	assert.Equal(t, "edge-approve", res.OutputEdgeID)
}

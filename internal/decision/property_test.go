package decision

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/lyzr/workflow-engine/internal/expr"
	"github.com/lyzr/workflow-engine/internal/graph"
)

// TestCollectAlwaysSupersetOfFirst verifies a universal hit-policy invariant
// (§8): whatever "first" returns is always a member of what "collect"
// returns for the same table and inputs, since collect never discards a
// matching rule.
func TestCollectAlwaysSupersetOfFirst(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("first's single match is always present in collect's rows", prop.ForAll(
		func(score int) bool {
			ev := New(expr.NewEvaluator())
			rules := []graph.Rule{
				rule("< 30", "low", 0, ""),
				rule("< 70", "mid", 0, ""),
				rule("<= 200", "high", 0, ""),
			}
			firstTable := ruleTable(graph.HitFirst, graph.AggregatorNone, rules...)
			collectTable := ruleTable(graph.HitCollect, graph.AggregatorNone, rules...)

			firstRes, err := ev.Evaluate(firstTable, map[string]interface{}{"risk_score": score})
			if err != nil {
				// Out of range of every rule; collect must also find nothing.
				_, collectErr := ev.Evaluate(collectTable, map[string]interface{}{"risk_score": score})
				return collectErr != nil
			}

			collectRes, err := ev.Evaluate(collectTable, map[string]interface{}{"risk_score": score})
			if err != nil {
				return false
			}

			for _, row := range collectRes.Rows {
				if row["decision"] == firstRes.Single["decision"] {
					return true
				}
			}
			return false
		},
		gen.IntRange(-10, 210),
	))

	properties.TestingRun(t)
}

// TestRuleOrderNeverReordersRows verifies rule_order always returns matched
// rows in declaration order regardless of how many rules match.
func TestRuleOrderNeverReordersRows(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("rule_order output indices are monotonically increasing", prop.ForAll(
		func(score int) bool {
			ev := New(expr.NewEvaluator())
			node := ruleTable(graph.HitRuleOrder, graph.AggregatorNone,
				rule("<= 200", "always-1", 0, ""),
				rule("< 100", "maybe-2", 0, ""),
				rule("< 50", "maybe-3", 0, ""),
			)
			res, err := ev.Evaluate(node, map[string]interface{}{"risk_score": score})
			if err != nil {
				return score > 200 || score < 0
			}
			// Declared order is always-1, maybe-2, maybe-3: whichever subset
			// matches must preserve that relative order.
			names := []string{"always-1", "maybe-2", "maybe-3"}
			lastIdx := -1
			for _, row := range res.Rows {
				found := -1
				for i, n := range names {
					if row["decision"] == n {
						found = i
						break
					}
				}
				if found <= lastIdx {
					return false
				}
				lastIdx = found
			}
			return true
		},
		gen.IntRange(-10, 210),
	))

	properties.TestingRun(t)
}

// Package decision implements the Decision Evaluator (§4.4): DMN-style
// rule-table evaluation against the six hit policies unique, first,
// priority, any, collect and rule_order.
package decision

import (
	"fmt"

	"github.com/lyzr/workflow-engine/internal/graph"
)

// Result is what a decision node produces: either a single row's outputs
// (unique/first/priority/any) or a list of rows (collect/rule_order),
// optionally reduced to a single aggregated value (collect with an
// aggregator).
type Result struct {
	Single     map[string]interface{}
	Rows       []map[string]interface{}
	Aggregated interface{}
	// OutputEdgeID is set when the matched rule(s) route directly via
	// output_edge_id rather than producing data the outbound edge
	// conditions then route on (§4.4).
	OutputEdgeID string
	// EdgeIDs parallels Rows for collect/rule_order: the output_edge_id of
	// each matched rule, in the same order as Rows (empty string where a
	// rule declared none).
	EdgeIDs []string
}

// Evaluator evaluates decision tables against resolved input column values.
type Evaluator struct {
	expr exprEvaluator
}

// exprEvaluator is the subset of expr.Evaluator the decision package needs,
// declared locally to keep this package's surface small and mockable.
type exprEvaluator interface {
	EvaluateCell(exprStr string, subject interface{}, env map[string]interface{}) (bool, error)
}

// New creates a decision Evaluator backed by the given cell-expression
// evaluator (normally *expr.Evaluator).
func New(e exprEvaluator) *Evaluator {
	return &Evaluator{expr: e}
}

type match struct {
	rule   graph.Rule
	index  int
	output map[string]interface{}
}

// Evaluate runs a decision table against resolved inputs (column name to
// value, already looked up from token data and bound contexts per §4.4) and
// reduces the matching rules according to the table's hit policy.
func (ev *Evaluator) Evaluate(node *graph.DecisionNode, inputs map[string]interface{}) (*Result, error) {
	table := node.Table

	var matches []match
	for i, rule := range table.Rules {
		ok, err := ev.ruleMatches(table, rule, inputs)
		if err != nil {
			return nil, &DecisionError{TableID: node.ID, Reason: err.Error()}
		}
		if ok {
			matches = append(matches, match{rule: rule, index: i, output: buildOutput(table, rule)})
		}
	}

	if len(matches) == 0 {
		return nil, &DecisionError{TableID: node.ID, Reason: "no rule matched"}
	}

	switch table.HitPolicy {
	case graph.HitUnique:
		if len(matches) > 1 {
			return nil, &DecisionError{TableID: node.ID, Reason: fmt.Sprintf("unique policy requires exactly one match, got %d", len(matches))}
		}
		return singleResult(matches[0]), nil

	case graph.HitFirst:
		return singleResult(matches[0]), nil

	case graph.HitAny:
		first := matches[0].output
		for _, m := range matches[1:] {
			if !outputsEqual(first, m.output) {
				return nil, &DecisionError{TableID: node.ID, Reason: "any policy requires all matching rules to agree on output"}
			}
		}
		return singleResult(matches[0]), nil

	case graph.HitPriority:
		best := matches[0]
		for _, m := range matches[1:] {
			if m.rule.Priority > best.rule.Priority {
				best = m
			}
		}
		return singleResult(best), nil

	case graph.HitCollect:
		rows := make([]map[string]interface{}, len(matches))
		edgeIDs := make([]string, len(matches))
		for i, m := range matches {
			rows[i] = m.output
			edgeIDs[i] = m.rule.OutputEdgeID
		}
		res := &Result{Rows: rows, EdgeIDs: edgeIDs}
		if table.Aggregator != graph.AggregatorNone {
			agg, err := aggregate(table, rows)
			if err != nil {
				return nil, &DecisionError{TableID: node.ID, Reason: err.Error()}
			}
			res.Aggregated = agg
		}
		return res, nil

	case graph.HitRuleOrder:
		rows := make([]map[string]interface{}, len(matches))
		edgeIDs := make([]string, len(matches))
		for i, m := range matches {
			rows[i] = m.output
			edgeIDs[i] = m.rule.OutputEdgeID
		}
		return &Result{Rows: rows, EdgeIDs: edgeIDs}, nil
	}

	return nil, &DecisionError{TableID: node.ID, Reason: fmt.Sprintf("unknown hit policy %q", table.HitPolicy)}
}

func (ev *Evaluator) ruleMatches(table graph.DecisionTable, rule graph.Rule, inputs map[string]interface{}) (bool, error) {
	for i, entry := range rule.InputEntries {
		if i >= len(table.Inputs) {
			return false, fmt.Errorf("rule has more input entries than declared input columns")
		}
		col := table.Inputs[i]
		subject := inputs[col]
		ok, err := ev.expr.EvaluateCell(entry.Expression, subject, inputs)
		if err != nil {
			return false, fmt.Errorf("input column %q: %w", col, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func buildOutput(table graph.DecisionTable, rule graph.Rule) map[string]interface{} {
	out := make(map[string]interface{}, len(rule.OutputEntries))
	for i, entry := range rule.OutputEntries {
		if i >= len(table.Outputs) {
			break
		}
		out[table.Outputs[i]] = parseOutputValue(entry.Expression)
	}
	return out
}

func singleResult(m match) *Result {
	return &Result{Single: m.output, OutputEdgeID: m.rule.OutputEdgeID}
}

func outputsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || !valuesEqual(v, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	af, aok := toComparableFloat(a)
	bf, bok := toComparableFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toComparableFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func aggregate(table graph.DecisionTable, rows []map[string]interface{}) (interface{}, error) {
	if table.Aggregator == graph.AggregatorCount {
		return len(rows), nil
	}
	if len(table.Outputs) == 0 {
		return nil, fmt.Errorf("collect aggregator requires at least one output column")
	}
	col := table.Outputs[0]

	var sum float64
	var best float64
	haveBest := false
	for _, row := range rows {
		f, ok := toComparableFloat(row[col])
		if !ok {
			return nil, fmt.Errorf("aggregator %q requires numeric output column %q, got %T", table.Aggregator, col, row[col])
		}
		sum += f
		if !haveBest || (table.Aggregator == graph.AggregatorMin && f < best) || (table.Aggregator == graph.AggregatorMax && f > best) {
			best = f
			haveBest = true
		}
	}

	switch table.Aggregator {
	case graph.AggregatorSum:
		return sum, nil
	case graph.AggregatorMin, graph.AggregatorMax:
		return best, nil
	}
	return nil, fmt.Errorf("unknown aggregator %q", table.Aggregator)
}

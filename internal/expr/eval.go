package expr

import (
	"fmt"
	"strings"
	"sync"
)

// Evaluator parses and caches compiled expressions, mirroring the
// teacher's condition.Evaluator caching idiom but over the hand-rolled AST
// above rather than CEL. A `cel:`-prefixed expression (§9's escape hatch,
// see cel.go) is delegated to an embedded CELEvaluator instead of the AST
// path.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Expr
	cel   *CELEvaluator
}

// NewEvaluator creates an expression evaluator with a compile cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*Expr), cel: NewCELEvaluator()}
}

func (e *Evaluator) compile(s string) (*Expr, error) {
	e.mu.RLock()
	if ex, ok := e.cache[s]; ok {
		e.mu.RUnlock()
		return ex, nil
	}
	e.mu.RUnlock()

	ex, err := Parse(s)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[s] = ex
	e.mu.Unlock()
	return ex, nil
}

// EvaluateCell matches a decision-table input cell against a resolved
// column value. subject is the value bound to that input column. A
// `cel:`-prefixed cell bypasses the subject-matching grammar entirely and
// evaluates as a full CEL boolean expression against env.
func (e *Evaluator) EvaluateCell(exprStr string, subject interface{}, env map[string]interface{}) (bool, error) {
	if IsCEL(exprStr) {
		return e.cel.Evaluate(exprStr, env, env)
	}
	ex, err := e.compile(exprStr)
	if err != nil {
		return false, fmt.Errorf("malformed expression %q: %w", exprStr, err)
	}
	return evalExpr(ex, subject, env)
}

// EvaluateCondition evaluates a full boolean expression (an edge condition
// or branch rule) against token data and bound contexts, with no implicit
// subject — every clause must carry a path. A `cel:`-prefixed condition
// evaluates via the CEL escape hatch (§9) instead of the AST grammar.
func (e *Evaluator) EvaluateCondition(exprStr string, env map[string]interface{}) (bool, error) {
	if IsCEL(exprStr) {
		return e.cel.Evaluate(exprStr, env, env)
	}
	ex, err := e.compile(exprStr)
	if err != nil {
		return false, fmt.Errorf("malformed expression %q: %w", exprStr, err)
	}
	return evalExpr(ex, nil, env)
}

func evalExpr(ex *Expr, subject interface{}, env map[string]interface{}) (bool, error) {
	if ex.Wildcard {
		return true, nil
	}
	for _, c := range ex.Clauses {
		ok, err := evalClause(c, subject, env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(c Clause, subject interface{}, env map[string]interface{}) (bool, error) {
	value := subject
	if len(c.Path) > 0 {
		v, ok := Resolve(env, c.Path)
		if !ok {
			return false, nil
		}
		value = v
	} else if value == nil {
		return false, fmt.Errorf("clause has no path and no subject value to test")
	}

	switch t := c.Test.(type) {
	case RelTest:
		return evalRel(t.Op, value, t.Value)
	case RangeTest:
		return evalRange(t, value)
	case SetTest:
		for _, v := range t.Values {
			eq, err := evalRel("=", value, v)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown test type %T", c.Test)
}

func evalRel(op string, a, b interface{}) (bool, error) {
	if op == "=" || op == "!=" {
		eq := looseEqual(a, b)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("comparison %s requires numeric operands, got %T and %T", op, a, b)
	}
	switch op {
	case "<":
		return af < bf, nil
	case "<=":
		return af <= bf, nil
	case ">":
		return af > bf, nil
	case ">=":
		return af >= bf, nil
	}
	return false, fmt.Errorf("unknown relational operator %q", op)
}

func evalRange(t RangeTest, value interface{}) (bool, error) {
	vf, ok := toFloat(value)
	if !ok {
		return false, fmt.Errorf("range test requires a numeric value, got %T", value)
	}
	if t.Lo != nil {
		lof, ok := toFloat(t.Lo)
		if !ok {
			return false, fmt.Errorf("range lower bound must be numeric")
		}
		if t.LoInclusive {
			if vf < lof {
				return false, nil
			}
		} else if vf <= lof {
			return false, nil
		}
	}
	if t.Hi != nil {
		hif, ok := toFloat(t.Hi)
		if !ok {
			return false, fmt.Errorf("range upper bound must be numeric")
		}
		if t.HiInclusive {
			if vf > hif {
				return false, nil
			}
		} else if vf >= hif {
			return false, nil
		}
	}
	return true, nil
}

func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.EqualFold(as, bs)
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

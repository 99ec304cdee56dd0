package expr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// celPrefix marks an expression as a CEL boolean expression rather than the
// default DMN-style grammar above. Grounded on the teacher's
// condition.Evaluator, which dispatched on a Condition.Type field ("cel" vs
// others); here the prefix plays the same role for a bare string. This is
// an escape hatch for conditions too irregular for the total grammar above
// (e.g. arbitrary boolean algebra over nested structures) — the default,
// spec-mandated path is the hand-rolled AST evaluator.
const celPrefix = "cel:"

// IsCEL reports whether exprStr should be evaluated with the CEL escape
// hatch instead of the default grammar.
func IsCEL(exprStr string) bool {
	return strings.HasPrefix(strings.TrimSpace(exprStr), celPrefix)
}

// CELEvaluator compiles and caches CEL programs, mirroring the teacher's
// condition.Evaluator.
type CELEvaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEvaluator creates a CEL expression evaluator with a compile cache.
func NewCELEvaluator() *CELEvaluator {
	return &CELEvaluator{cache: make(map[string]cel.Program)}
}

// Evaluate evaluates a `cel:`-prefixed expression with data bound to the
// CEL variable "data" and ctx to "ctx". expr.Evaluator passes its single
// merged environment (token data over context values) as both.
func (e *CELEvaluator) Evaluate(exprStr string, data, ctx map[string]interface{}) (bool, error) {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(exprStr), celPrefix))

	e.mu.RLock()
	prg, ok := e.cache[body]
	e.mu.RUnlock()

	if !ok {
		env, err := cel.NewEnv(
			cel.Variable("data", cel.DynType),
			cel.Variable("ctx", cel.DynType),
		)
		if err != nil {
			return false, fmt.Errorf("create CEL env: %w", err)
		}
		ast, issues := env.Compile(body)
		if issues != nil && issues.Err() != nil {
			return false, fmt.Errorf("compile CEL expression: %w", issues.Err())
		}
		prg, err = env.Program(ast)
		if err != nil {
			return false, fmt.Errorf("build CEL program: %w", err)
		}

		e.mu.Lock()
		e.cache[body] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{"data": data, "ctx": ctx})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

// Package expr implements the tiny, total expression language used by
// decision tables and edge conditions (§4.4, §9): literal scalars,
// comparisons, ranges, set membership, the wildcard, and conjunction. It
// is a hand-written lexer/parser/evaluator over an explicit AST — no
// reliance on any host language's eval.
package expr

// Literal is an atomic value: float64, string, bool, or nil.
type Literal = interface{}

// Test is a unary predicate applied to a resolved value.
type Test interface{ isTest() }

// RelTest is a relational comparison: `< 30`, `>= 10`, `= "ok"`, `!= 0`.
type RelTest struct {
	Op    string // "=", "!=", "<", "<=", ">", ">="
	Value Literal
}

func (RelTest) isTest() {}

// RangeTest is an inclusive/exclusive numeric or ordinal range:
// `[a..b]`, `(a..b)`, `[a..b)`, `(a..b]`.
type RangeTest struct {
	Lo, Hi                   Literal
	LoInclusive, HiInclusive bool
}

func (RangeTest) isTest() {}

// SetTest is set membership: `in (v1, v2, …)`.
type SetTest struct {
	Values []Literal
}

func (SetTest) isTest() {}

// Clause is one conjunct: an optional dotted path naming the value the
// Test applies to (absent for a decision-table cell, where the test
// applies to that column's bound value) and the Test itself.
type Clause struct {
	Path []string // nil => applies to the evaluation subject
	Test Test
}

// Expr is a parsed expression: the wildcard, or a conjunction of clauses.
type Expr struct {
	Wildcard bool
	Clauses  []Clause
}

package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	lex  *lexer
	cur  lexToken
	peek *lexToken
}

// Parse compiles an expression string into an AST. It never reaches into
// any host-language evaluator — every construct has an explicit grammar
// rule (§9).
func Parse(s string) (*Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty expression")
	}
	p := &parser{lex: newLexer(s)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.cur.kind == tokDash {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokEOF {
			return nil, fmt.Errorf("unexpected token %q after wildcard", p.cur.text)
		}
		return &Expr{Wildcard: true}, nil
	}

	var clauses []Clause
	for {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)

		if p.cur.kind == tokAnd {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.cur.text)
	}
	return &Expr{Clauses: clauses}, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func isTestStart(k tokenKind) bool {
	switch k {
	case tokOp, tokLBracket, tokLParen, tokIn:
		return true
	}
	return false
}

func (p *parser) parseClause() (Clause, error) {
	var path []string

	if p.cur.kind == tokIdent {
		ident := p.cur.text
		if err := p.advance(); err != nil {
			return Clause{}, err
		}
		if isTestStart(p.cur.kind) {
			path = strings.Split(ident, ".")
			test, err := p.parseTest()
			if err != nil {
				return Clause{}, err
			}
			return Clause{Path: path, Test: test}, nil
		}
		// Bare identifier: an enum-style equality literal, no path.
		return Clause{Test: RelTest{Op: "=", Value: atomForIdent(ident)}}, nil
	}

	test, err := p.parseTest()
	if err != nil {
		return Clause{}, err
	}
	return Clause{Test: test}, nil
}

func atomForIdent(ident string) Literal {
	switch strings.ToLower(ident) {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}
	return ident
}

func (p *parser) parseTest() (Test, error) {
	switch p.cur.kind {
	case tokOp:
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return RelTest{Op: op, Value: val}, nil

	case tokIn:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokLParen {
			return nil, fmt.Errorf("expected '(' after 'in'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var values []Literal
		for p.cur.kind != tokRParen {
			v, err := p.parseAtom()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' to close 'in (...)'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return SetTest{Values: values}, nil

	case tokLBracket, tokLParen:
		loInclusive := p.cur.kind == tokLBracket
		if err := p.advance(); err != nil {
			return nil, err
		}

		var lo Literal
		if p.cur.kind != tokDotDot {
			v, err := p.parseAtom()
			if err != nil {
				return nil, err
			}
			lo = v
		}
		if p.cur.kind != tokDotDot {
			return nil, fmt.Errorf("expected '..' in range expression")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}

		var hi Literal
		if p.cur.kind != tokRBracket && p.cur.kind != tokRParen {
			v, err := p.parseAtom()
			if err != nil {
				return nil, err
			}
			hi = v
		}
		if p.cur.kind != tokRBracket && p.cur.kind != tokRParen {
			return nil, fmt.Errorf("expected ']' or ')' to close range expression")
		}
		hiInclusive := p.cur.kind == tokRBracket
		if err := p.advance(); err != nil {
			return nil, err
		}
		return RangeTest{Lo: lo, Hi: hi, LoInclusive: loInclusive, HiInclusive: hiInclusive}, nil
	}

	return nil, fmt.Errorf("unexpected token %q", p.cur.text)
}

func (p *parser) parseAtom() (Literal, error) {
	switch p.cur.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p.cur.text, err)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return f, nil
	case tokString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return s, nil
	case tokIdent:
		v := atomForIdent(p.cur.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("expected literal, got %q", p.cur.text)
}

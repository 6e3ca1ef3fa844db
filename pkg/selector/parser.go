package selector

import (
	"fmt"
	"strconv"

	"github.com/matzehuels/metarender/pkg/errors"
)

// Expr is a node of the selector AST.
type Expr interface {
	eval(ns Namespace, missing map[string]bool) (Value, error)
}

// Literal is a constant value.
type Literal struct{ Value Value }

// Ident names a namespace entry.
type Ident struct{ Name string }

// Not negates its operand's truthiness.
type Not struct{ X Expr }

// And returns the first falsy operand, or the right operand.
type And struct{ L, R Expr }

// Or returns the first truthy operand, or the right operand.
type Or struct{ L, R Expr }

// Compare is a comparison chain: a < b <= c means (a < b) and (b <= c).
type Compare struct {
	Operands []Expr
	Ops      []string
}

// Parse compiles a selector expression.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSyntax, "invalid selector %q: %v", src, err)
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err == nil && p.peek().kind != tokEOF {
		err = fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeSyntax, "invalid selector %q: %v", src, err)
	}
	return expr, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (Expr, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokCompare {
		return first, nil
	}
	cmp := Compare{Operands: []Expr{first}}
	for p.peek().kind == tokCompare {
		cmp.Ops = append(cmp.Ops, p.next().text)
		operand, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		cmp.Operands = append(cmp.Operands, operand)
	}
	return cmp, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return Ident{Name: t.text}, nil
	case tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", t.text)
		}
		return Literal{Value: Int(n)}, nil
	case tokString:
		return Literal{Value: String(t.text)}, nil
	case tokTrue:
		return Literal{Value: Bool(true)}, nil
	case tokFalse:
		return Literal{Value: Bool(false)}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing ')' at offset %d", t.pos)
		}
		return x, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

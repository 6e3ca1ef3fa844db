package selector

import (
	"sort"

	"github.com/matzehuels/metarender/pkg/errors"
)

// Evaluate parses and evaluates expr against ns.
//
// Identifiers absent from ns evaluate to False; their names are returned
// sorted and deduplicated. A syntax error or an invalid comparison is a
// SYNTAX_ERROR.
func Evaluate(expr string, ns Namespace) (bool, []string, error) {
	x, err := Parse(expr)
	if err != nil {
		return false, nil, err
	}
	return Eval(x, ns)
}

// Eval evaluates a parsed expression against ns.
func Eval(x Expr, ns Namespace) (bool, []string, error) {
	missing := make(map[string]bool)
	v, err := x.eval(ns, missing)
	if err != nil {
		return false, nil, errors.New(errors.ErrCodeSyntax, "invalid selector: %v", err)
	}
	var names []string
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return v.Truthy(), names, nil
}

func (l Literal) eval(Namespace, map[string]bool) (Value, error) { return l.Value, nil }

func (id Ident) eval(ns Namespace, missing map[string]bool) (Value, error) {
	if v, ok := ns.Lookup(id.Name); ok {
		return v, nil
	}
	missing[id.Name] = true
	return Bool(false), nil
}

func (n Not) eval(ns Namespace, missing map[string]bool) (Value, error) {
	v, err := n.X.eval(ns, missing)
	if err != nil {
		return Value{}, err
	}
	return Bool(!v.Truthy()), nil
}

func (a And) eval(ns Namespace, missing map[string]bool) (Value, error) {
	l, err := a.L.eval(ns, missing)
	if err != nil || !l.Truthy() {
		return l, err
	}
	return a.R.eval(ns, missing)
}

func (o Or) eval(ns Namespace, missing map[string]bool) (Value, error) {
	l, err := o.L.eval(ns, missing)
	if err != nil || l.Truthy() {
		return l, err
	}
	return o.R.eval(ns, missing)
}

func (c Compare) eval(ns Namespace, missing map[string]bool) (Value, error) {
	left, err := c.Operands[0].eval(ns, missing)
	if err != nil {
		return Value{}, err
	}
	for i, op := range c.Ops {
		right, err := c.Operands[i+1].eval(ns, missing)
		if err != nil {
			return Value{}, err
		}
		ok, err := compare(op, left, right)
		if err != nil {
			return Value{}, err
		}
		if !ok {
			return Bool(false), nil
		}
		left = right
	}
	return Bool(true), nil
}

// Package selector implements recipe line selectors.
//
// A selector is a bracketed boolean expression at the end of a recipe line:
//
//	- pywin32   # [win]
//	- gcc       # [linux and not arm]
//	- backports # [py < 33]
//
// Expressions use a small closed grammar (literals, identifiers, and/or/not,
// chained comparisons, parentheses) evaluated against a [Namespace]. There is
// no path from a selector to arbitrary computation: identifiers can only name
// namespace entries, and there are no calls, attribute lookups or indexing.
//
// Identifiers missing from the namespace evaluate to False. [Evaluate] reports
// them so the caller can warn.
package selector

import (
	"fmt"
	"strconv"
)

// Kind identifies the primitive type held by a Value.
type Kind uint8

// Value kinds.
const (
	KindBool Kind = iota
	KindInt
	KindString
)

// Value is a primitive namespace or literal value.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Truthy applies Python truthiness: false, 0 and "" are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	default:
		return v.s != ""
	}
}

// Native returns the value as a Go bool, int64 or string.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	default:
		return v.s
	}
}

// Text renders the value the way a template would print it.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return v.s
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.Text()
}

// numeric reports whether v takes part in integer comparison.
// Booleans compare as 0 and 1.
func (v Value) numeric() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Namespace resolves selector identifiers.
type Namespace interface {
	Lookup(name string) (Value, bool)
}

// MapNamespace is a Namespace backed by a plain map, handy in tests.
type MapNamespace map[string]Value

// Lookup implements Namespace.
func (m MapNamespace) Lookup(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

func compare(op string, a, b Value) (bool, error) {
	ai, aNum := a.numeric()
	bi, bNum := b.numeric()
	switch {
	case aNum && bNum:
		switch op {
		case "==":
			return ai == bi, nil
		case "!=":
			return ai != bi, nil
		case "<":
			return ai < bi, nil
		case "<=":
			return ai <= bi, nil
		case ">":
			return ai > bi, nil
		case ">=":
			return ai >= bi, nil
		}
	case a.kind == KindString && b.kind == KindString:
		switch op {
		case "==":
			return a.s == b.s, nil
		case "!=":
			return a.s != b.s, nil
		case "<":
			return a.s < b.s, nil
		case "<=":
			return a.s <= b.s, nil
		case ">":
			return a.s > b.s, nil
		case ">=":
			return a.s >= b.s, nil
		}
	default:
		switch op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return false, fmt.Errorf("cannot compare %s %s %s", a, op, b)
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

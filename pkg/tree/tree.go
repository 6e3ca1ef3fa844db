// Package tree models decoded recipe documents as a tagged value tree.
//
// Every node is one of three kinds:
//
//   - [Scalar]: a literal string, exactly as written in the source
//   - [Sequence]: an ordered list of nodes
//   - [*Mapping]: an insertion-ordered string-keyed map of nodes
//
// Scalars are never interpreted while decoding: "true", "1" and "1.10" all
// stay strings. Typing happens later, field by field, in the recipe package.
// This mirrors how recipe values survive templating verbatim (a version
// such as 1.10 must not become the float 1.1).
//
// Trees are plain values with no shared state: [Clone] returns a deep copy
// and every mutating helper works on the mapping it is given.
package tree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant of a [Value].
type Kind int

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
)

// String returns the name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "str"
	case KindSequence:
		return "list"
	case KindMapping:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is a node of the tree. The set of implementations is closed.
type Value interface {
	Kind() Kind
	isValue()
}

// Scalar is a literal string leaf.
type Scalar string

// Sequence is an ordered list of nodes.
type Sequence []Value

// Kind implements Value.
func (Scalar) Kind() Kind { return KindScalar }

// Kind implements Value.
func (Sequence) Kind() Kind { return KindSequence }

// Kind implements Value.
func (*Mapping) Kind() Kind { return KindMapping }

func (Scalar) isValue()   {}
func (Sequence) isValue() {}
func (*Mapping) isValue() {}

// Mapping is an insertion-ordered map from string keys to nodes.
//
// The zero value is an empty mapping ready to use.
type Mapping struct {
	keys []string
	vals map[string]Value
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{vals: make(map[string]Value)}
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil || m.vals == nil {
		return nil, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Mapping) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. A new key is appended; an existing key keeps its
// position.
func (m *Mapping) Set(key string, v Value) {
	if m.vals == nil {
		m.vals = make(map[string]Value)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Delete removes key if present.
func (m *Mapping) Delete(key string) {
	if m == nil || m.vals == nil {
		return
	}
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Mapping returns the mapping stored under key.
func (m *Mapping) Mapping(key string) (*Mapping, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	mm, ok := v.(*Mapping)
	return mm, ok
}

// String returns the scalar stored under key, or "" when absent or not a scalar.
func (m *Mapping) String(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(Scalar)
	return string(s)
}

// Ensure returns the mapping stored under key, creating (or replacing a
// non-mapping value with) an empty one.
func (m *Mapping) Ensure(key string) *Mapping {
	if mm, ok := m.Mapping(key); ok {
		return mm
	}
	mm := NewMapping()
	m.Set(key, mm)
	return mm
}

// Equal reports whether o holds the same entries in the same order.
func (m *Mapping) Equal(o *Mapping) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.keys {
		if o.keys[i] != k || !Equal(m.vals[k], o.vals[k]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Scalar:
		return t
	case Sequence:
		if t == nil {
			return Sequence(nil)
		}
		out := make(Sequence, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case *Mapping:
		return t.Clone()
	default:
		return nil
	}
}

// Clone returns a deep copy of m.
func (m *Mapping) Clone() *Mapping {
	out := NewMapping()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, Clone(m.vals[k]))
	}
	return out
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Value) bool {
	switch ta := a.(type) {
	case Scalar:
		tb, ok := b.(Scalar)
		return ok && ta == tb
	case Sequence:
		tb, ok := b.(Sequence)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case *Mapping:
		tb, ok := b.(*Mapping)
		return ok && ta.Equal(tb)
	default:
		return a == nil && b == nil
	}
}

// IsEmpty reports whether v is nil, an empty scalar, or a collection with no
// entries.
func IsEmpty(v Value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case Scalar:
		return t == ""
	case Sequence:
		return len(t) == 0
	case *Mapping:
		return t.Len() == 0
	default:
		return false
	}
}

// Strings flattens v into a list of strings: a scalar yields itself, a
// sequence yields its scalar items, and anything else yields nothing.
func Strings(v Value) []string {
	switch t := v.(type) {
	case Scalar:
		return []string{string(t)}
	case Sequence:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(Scalar); ok {
				out = append(out, string(s))
			}
		}
		return out
	default:
		return nil
	}
}

// StringSeq builds a sequence of scalars.
func StringSeq(items ...string) Sequence {
	out := make(Sequence, len(items))
	for i, s := range items {
		out[i] = Scalar(s)
	}
	return out
}

// Lookup walks a slash-separated path of mapping keys.
func Lookup(m *Mapping, path string) (Value, bool) {
	var cur Value = m
	for _, part := range strings.Split(path, "/") {
		mm, ok := cur.(*Mapping)
		if !ok {
			return nil, false
		}
		cur, ok = mm.Get(part)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// TrimEmpty recursively removes keys whose value is empty. Mappings emptied
// by the recursion are removed too.
func TrimEmpty(m *Mapping) {
	for _, k := range m.Keys() {
		v := m.vals[k]
		if mm, ok := v.(*Mapping); ok {
			TrimEmpty(mm)
		}
		if IsEmpty(v) {
			m.Delete(k)
		}
	}
}

// ToNative converts v into map[string]any, []any and string values.
func ToNative(v Value) any {
	switch t := v.(type) {
	case Scalar:
		return string(t)
	case Sequence:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToNative(item)
		}
		return out
	case *Mapping:
		out := make(map[string]any, t.Len())
		for _, k := range t.keys {
			out[k] = ToNative(t.vals[k])
		}
		return out
	default:
		return nil
	}
}

// FromNative converts Go values into a tree. Map keys are sorted; booleans
// and numbers become their literal text.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Scalar(""), nil
	case Value:
		return Clone(t), nil
	case string:
		return Scalar(t), nil
	case bool:
		if t {
			return Scalar("true"), nil
		}
		return Scalar("false"), nil
	case int:
		return Scalar(strconv.Itoa(t)), nil
	case int64:
		return Scalar(strconv.FormatInt(t, 10)), nil
	case float64:
		return Scalar(strconv.FormatFloat(t, 'f', -1, 64)), nil
	case []string:
		return StringSeq(t...), nil
	case []any:
		out := make(Sequence, len(t))
		for i, item := range t {
			v, err := FromNative(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]string:
		out := NewMapping()
		for _, k := range sortedKeys(t) {
			out.Set(k, Scalar(t[k]))
		}
		return out, nil
	case map[string]any:
		out := NewMapping()
		for _, k := range sortedKeys(t) {
			v, err := FromNative(t[k])
			if err != nil {
				return nil, err
			}
			out.Set(k, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tree: unsupported native type %T", x)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package variant defines the build-variant value object.
//
// A Variant binds configurable dependency names (python, numpy, a compiler)
// to concrete version strings. One recipe is rendered once per variant.
// Variants are immutable once handed to the renderer: every method that
// changes a binding returns a new Variant.
package variant

import (
	"sort"
	"strings"
)

// Variant maps dependency names to version or build strings.
type Variant map[string]string

// Defaults are used for namespace flags when a variant does not bind the key.
var Defaults = Variant{
	"python": "3.6",
	"numpy":  "1.11",
	"perl":   "5.22.2.1",
	"lua":    "5",
	"r_base": "3.4",
}

// Get returns the bound value, or "" when absent.
func (v Variant) Get(key string) string {
	return v[key]
}

// GetDefault returns the bound value, falling back to [Defaults].
func (v Variant) GetDefault(key string) string {
	if s, ok := v[key]; ok && s != "" {
		return s
	}
	return Defaults[key]
}

// Clone returns an independent copy.
func (v Variant) Clone() Variant {
	out := make(Variant, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}

// With returns a copy with key bound to value.
func (v Variant) With(key, value string) Variant {
	out := v.Clone()
	out[key] = value
	return out
}

// Keys returns the bound keys in sorted order.
func (v Variant) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key returns the canonical string form, usable as a map key.
// Two variants with the same bindings always produce the same key.
func (v Variant) Key() string {
	var b strings.Builder
	for i, k := range v.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v[k])
	}
	return b.String()
}

// String implements fmt.Stringer.
func (v Variant) String() string {
	if len(v) == 0 {
		return "{}"
	}
	return "{" + v.Key() + "}"
}

// Equal reports whether both variants bind the same keys to the same values.
func (v Variant) Equal(o Variant) bool {
	if len(v) != len(o) {
		return false
	}
	for k, s := range v {
		if ov, ok := o[k]; !ok || ov != s {
			return false
		}
	}
	return true
}

// Parse reads "key=value" bindings, as given on the command line.
func Parse(pairs []string) (Variant, bool) {
	v := make(Variant, len(pairs))
	for _, p := range pairs {
		k, val, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, false
		}
		v[k] = strings.TrimSpace(val)
	}
	return v, true
}

// Product expands a matrix of key -> candidate values into every combination.
// Keys are iterated in sorted order so the result order is deterministic.
// Keys with no candidates are skipped.
func Product(matrix map[string][]string) []Variant {
	keys := make([]string, 0, len(matrix))
	for k, vals := range matrix {
		if len(vals) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	result := []Variant{{}}
	for _, k := range keys {
		next := make([]Variant, 0, len(result)*len(matrix[k]))
		for _, base := range result {
			for _, val := range matrix[k] {
				next = append(next, base.With(k, val))
			}
		}
		result = next
	}
	if len(result) == 1 && len(result[0]) == 0 {
		return nil
	}
	return result
}

// Dedupe drops later variants equal to an earlier one, preserving order.
func Dedupe(vs []Variant) []Variant {
	seen := make(map[string]bool, len(vs))
	out := vs[:0:0]
	for _, v := range vs {
		k := v.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

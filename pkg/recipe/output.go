package recipe

import (
	"github.com/matzehuels/metarender/pkg/tree"
)

// TypeConda is the output type of regular packages.
const TypeConda = "conda"

// Output describes one sub-package of a recipe.
//
// A descriptor without a name stands for the top-level package. Outputs of
// a type other than "conda" (wheels, for instance) are excluded from
// dependency ordering.
type Output struct {
	m *tree.Mapping
}

// NewOutput wraps a descriptor mapping. The mapping is cloned.
func NewOutput(m *tree.Mapping) Output {
	return Output{m: m.Clone()}
}

// Outputs returns the descriptors declared in doc's outputs section.
func Outputs(doc *tree.Mapping) []Output {
	v, ok := doc.Get(SectionOutputs)
	if !ok {
		return nil
	}
	seq, _ := v.(tree.Sequence)
	out := make([]Output, 0, len(seq))
	for _, item := range seq {
		if m, ok := item.(*tree.Mapping); ok {
			out = append(out, NewOutput(m))
		}
	}
	return out
}

// Name returns the declared output name.
func (o Output) Name() (string, bool) {
	if !o.m.Has("name") {
		return "", false
	}
	return o.m.String("name"), true
}

// Type returns the output type, "conda" when unset.
func (o Output) Type() string {
	if t := o.m.String("type"); t != "" {
		return t
	}
	return TypeConda
}

// IsConda reports whether the output takes part in dependency ordering.
func (o Output) IsConda() bool { return o.Type() == TypeConda }

// Get returns a descriptor field.
func (o Output) Get(key string) (tree.Value, bool) { return o.m.Get(key) }

// Has reports whether a descriptor field is present.
func (o Output) Has(key string) bool { return o.m.Has(key) }

// String returns a scalar descriptor field.
func (o Output) String(key string) string { return o.m.String(key) }

// HasOwnContent reports whether the output declares files or a script.
func (o Output) HasOwnContent() bool {
	files, _ := o.m.Get("files")
	script, _ := o.m.Get("script")
	return !tree.IsEmpty(files) || !tree.IsEmpty(script)
}

// With returns a copy with key set to v.
func (o Output) With(key string, v tree.Value) Output {
	m := o.m.Clone()
	m.Set(key, tree.Clone(v))
	return Output{m: m}
}

// Requirements splits the output's requirements into build, run and
// run_constrained lists. A plain list applies to both build and run.
func (o Output) Requirements() (build, run, constrained []string) {
	v, ok := o.m.Get("requirements")
	if !ok {
		return nil, nil, nil
	}
	if m, ok := v.(*tree.Mapping); ok {
		b, _ := m.Get("build")
		r, _ := m.Get("run")
		c, _ := m.Get("run_constrained")
		return tree.Strings(b), tree.Strings(r), tree.Strings(c)
	}
	reqs := tree.Strings(v)
	return reqs, append([]string(nil), reqs...), nil
}

// HostRequirements returns requirements/host when requirements is a
// mapping.
func (o Output) HostRequirements() []string {
	v, _ := o.m.Get("requirements")
	if m, ok := v.(*tree.Mapping); ok {
		h, _ := m.Get("host")
		return tree.Strings(h)
	}
	return nil
}

// Mapping returns a copy of the underlying descriptor.
func (o Output) Mapping() *tree.Mapping { return o.m.Clone() }

// Equal reports whether both descriptors hold the same fields.
func (o Output) Equal(other Output) bool { return o.m.Equal(other.m) }

// Package outputs turns a rendered recipe into its output descriptors and
// orders them by their dependencies on each other.
package outputs

import (
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/recipe"
	"github.com/matzehuels/metarender/pkg/tree"
)

// Extract returns the output descriptors of a rendered recipe.
//
// A recipe without an outputs section yields one descriptor for the
// top-level package. When outputs are declared but none carries the
// top-level name, a top-level descriptor is appended if the top-level
// requirements use one of the outputs. A descriptor named like the recipe
// without files or a script of its own inherits the top-level requirements
// and noarch settings.
func Extract(d *metadata.Draft) ([]recipe.Output, error) {
	name, err := d.Name()
	if err != nil {
		return nil, err
	}
	doc := d.Document()
	top := topLevel(doc, name)

	declared := recipe.Outputs(doc)
	if len(declared) == 0 {
		return []recipe.Output{top}, nil
	}

	out := make([]recipe.Output, 0, len(declared)+1)
	matched := false
	for _, o := range declared {
		outName, ok := o.Name()
		if ok && outName != name {
			out = append(out, o)
			continue
		}
		matched = true
		if !o.HasOwnContent() {
			o = inherit(o, top)
		}
		out = append(out, o)
	}
	if !matched && d.UsesSubpackage() {
		out = append(out, top)
	}
	return out, nil
}

// topLevel describes the package the recipe itself builds.
func topLevel(doc *tree.Mapping, name string) recipe.Output {
	m := tree.NewMapping()
	m.Set("name", tree.Scalar(name))
	if reqs, ok := doc.Get("requirements"); ok {
		m.Set("requirements", reqs)
	}
	build, _ := doc.Mapping("build")
	for _, key := range []string{"noarch_python", "noarch"} {
		if v, ok := build.Get(key); ok {
			m.Set(key, v)
		}
	}
	m.Set("type", tree.Scalar(recipe.TypeConda))
	if v, ok := build.Get("run_exports"); ok {
		m.Set("run_exports", v)
	}
	return recipe.NewOutput(m)
}

func inherit(o, top recipe.Output) recipe.Output {
	for _, key := range []string{"requirements", "noarch", "noarch_python"} {
		if v, ok := top.Get(key); ok {
			o = o.With(key, v)
		}
	}
	return o
}

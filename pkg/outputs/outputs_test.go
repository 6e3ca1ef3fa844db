package outputs

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/recipe"
	"github.com/matzehuels/metarender/pkg/tree"
)

func draft(t *testing.T, text string) *metadata.Draft {
	t.Helper()
	doc, err := tree.DecodeMapping([]byte(text))
	if err != nil {
		t.Fatalf("DecodeMapping() error: %v", err)
	}
	d, err := metadata.FromDocument(doc, config.Default(), nil, nil)
	if err != nil {
		t.Fatalf("FromDocument() error: %v", err)
	}
	return d
}

// entries extracts and resolves every output of a recipe.
func entries(t *testing.T, text string) []metadata.Entry {
	t.Helper()
	d := draft(t, text)
	outs, err := Extract(d)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	var es []metadata.Entry
	for _, o := range outs {
		om, err := d.OutputMetadata(o)
		if err != nil {
			t.Fatalf("OutputMetadata() error: %v", err)
		}
		r, err := om.Resolve()
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		es = append(es, metadata.Entry{Output: o, Meta: r})
	}
	return es
}

func names(es []metadata.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Meta.Name()
	}
	return out
}

func outputNames(t *testing.T, outs []recipe.Output) []string {
	t.Helper()
	out := make([]string, len(outs))
	for i, o := range outs {
		name, ok := o.Name()
		if !ok {
			t.Fatalf("output %d has no name", i)
		}
		out[i] = name
	}
	return out
}

func TestExtractWithoutOutputs(t *testing.T) {
	d := draft(t, `package: {name: foo, version: '1'}
build:
  noarch: python
  run_exports:
    - foo
requirements:
  run:
    - python
`)
	outs, err := Extract(d)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("Extract() returned %d outputs, want 1", len(outs))
	}
	want := map[string]any{
		"name":         "foo",
		"requirements": map[string]any{"run": []any{"python"}},
		"noarch":       "python",
		"type":         "conda",
		"run_exports":  []any{"foo"},
	}
	if diff := cmp.Diff(want, tree.ToNative(outs[0].Mapping())); diff != "" {
		t.Errorf("top-level descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractInheritance(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		inherit bool
	}{
		{"bare", "  - name: foo\n", true},
		{"with script", "  - name: foo\n    script: install.sh\n", false},
		{"with files", "  - name: foo\n    files:\n      - lib/*\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft(t, "package: {name: foo, version: '1'}\nrequirements:\n  run:\n    - six\noutputs:\n"+tt.output)
			outs, err := Extract(d)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if len(outs) != 1 {
				t.Fatalf("Extract() returned %d outputs, want 1", len(outs))
			}
			if got := outs[0].Has("requirements"); got != tt.inherit {
				t.Errorf("inherited requirements = %v, want %v", got, tt.inherit)
			}
		})
	}
}

func TestExtractMetapackage(t *testing.T) {
	tests := []struct {
		name string
		run  string
		want []string
	}{
		{"uses subpackage", "libfoo", []string{"libfoo", "foo-tools", "foo"}},
		{"independent", "six", []string{"libfoo", "foo-tools"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft(t, `package: {name: foo, version: '1'}
requirements:
  run:
    - `+tt.run+`
outputs:
  - name: libfoo
  - name: foo-tools
`)
			outs, err := Extract(d)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, outputNames(t, outs)); diff != "" {
				t.Errorf("Extract() names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractInvalidName(t *testing.T) {
	d := draft(t, "package: {name: Foo, version: '1'}\n")
	if _, err := Extract(d); !errors.Is(err, errors.ErrCodeSemantic) {
		t.Errorf("Extract() error = %v, want %v", err, errors.ErrCodeSemantic)
	}
}

func TestToposortRunDependency(t *testing.T) {
	es := entries(t, `package: {name: top, version: '1'}
outputs:
  - name: b
    requirements:
      run:
        - a
  - name: a
`)
	for _, phase := range []string{metadata.PhaseRun, metadata.PhaseBuild} {
		got, err := Toposort(es, phase)
		if err != nil {
			t.Fatalf("Toposort(%s) error: %v", phase, err)
		}
		want := []string{"a", "b"}
		if phase == metadata.PhaseBuild {
			want = []string{"b", "a"}
		}
		if diff := cmp.Diff(want, names(got)); diff != "" {
			t.Errorf("Toposort(%s) mismatch (-want +got):\n%s", phase, diff)
		}
	}
}

func TestToposortOrdersBuildChain(t *testing.T) {
	es := entries(t, `package: {name: top, version: '1'}
outputs:
  - name: app
    requirements:
      host:
        - lib
  - name: lib
    requirements:
      build:
        - core
  - name: core
  - name: doc
`)
	got, err := Toposort(es, metadata.PhaseBuild)
	if err != nil {
		t.Fatalf("Toposort() error: %v", err)
	}
	order := names(got)
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	if pos["core"] > pos["lib"] || pos["lib"] > pos["app"] {
		t.Errorf("Toposort() = %v, dependencies must come first", order)
	}
	if len(order) != 4 {
		t.Errorf("Toposort() = %v, want 4 entries", order)
	}
}

func TestToposortBuildCycle(t *testing.T) {
	es := entries(t, `package: {name: top, version: '1'}
outputs:
  - name: a
    requirements:
      build:
        - b
  - name: b
    requirements:
      build:
        - a
`)
	_, err := Toposort(es, metadata.PhaseBuild)
	if !errors.Is(err, errors.ErrCodeCircularBuildDependency) {
		t.Fatalf("Toposort() error = %v, want %v", err, errors.ErrCodeCircularBuildDependency)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("error %q does not name the cycle", err.Error())
	}
}

func TestToposortRunCycleTolerated(t *testing.T) {
	es := entries(t, `package: {name: top, version: '1'}
outputs:
  - name: c
  - name: a
    requirements:
      run:
        - b
  - name: b
    requirements:
      run:
        - a >=1
`)
	got, err := Toposort(es, metadata.PhaseRun)
	if err != nil {
		t.Fatalf("Toposort() error: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, names(got)); diff != "" {
		t.Errorf("Toposort() mismatch (-want +got):\n%s", diff)
	}
}

func TestToposortNonCondaLast(t *testing.T) {
	es := entries(t, `package: {name: top, version: '1'}
outputs:
  - name: foo
    type: wheel
  - name: bar
  - name: baz
    type: rpm
  - name: qux
    requirements:
      build:
        - bar
`)
	got, err := Toposort(es, metadata.PhaseBuild)
	if err != nil {
		t.Fatalf("Toposort() error: %v", err)
	}
	want := []string{"bar", "qux", "foo_wheel", "baz_rpm"}
	if diff := cmp.Diff(want, names(got)); diff != "" {
		t.Errorf("Toposort() mismatch (-want +got):\n%s", diff)
	}
}

func TestGraph(t *testing.T) {
	es := entries(t, `package: {name: top, version: '1'}
outputs:
  - name: a
    requirements:
      run:
        - b
        - zlib
  - name: b
`)
	g := Graph(es, metadata.PhaseRun)
	if g.NodeCount() != 2 || g.EdgeCount() != 1 {
		t.Fatalf("Graph() = %d nodes, %d edges, want 2, 1", g.NodeCount(), g.EdgeCount())
	}
	if diff := cmp.Diff([]string{"b"}, g.Children("a")); diff != "" {
		t.Errorf("Children(a) mismatch (-want +got):\n%s", diff)
	}
	n, _ := g.Node("b")
	if n.Meta["version"] != "1" || n.Meta["build"] != es[1].Meta.BuildID() {
		t.Errorf("node meta = %v", n.Meta)
	}
}

func TestExactPinCycle(t *testing.T) {
	tests := []struct {
		name    string
		recipe  string
		wantErr bool
	}{
		{
			name: "exact pin with back edge",
			recipe: `package: {name: top, version: '1'}
outputs:
  - name: a
    requirements:
      run:
        - b 1 h1234567_0
  - name: b
    requirements:
      run:
        - a
`,
			wantErr: true,
		},
		{
			name: "exact pin through run_exports",
			recipe: `package: {name: top, version: '1'}
outputs:
  - name: a
    run_exports:
      strong:
        - b 1 h1234567_0
  - name: b
    requirements:
      run:
        - c
  - name: c
    requirements:
      run:
        - a >=1
`,
			wantErr: true,
		},
		{
			name: "range pins may loop",
			recipe: `package: {name: top, version: '1'}
outputs:
  - name: a
    requirements:
      run:
        - b >=1
  - name: b
    requirements:
      run:
        - a >=1
`,
		},
		{
			name: "exact pin without back edge",
			recipe: `package: {name: top, version: '1'}
outputs:
  - name: a
    requirements:
      run:
        - b 1 h1234567_0
  - name: b
`,
		},
		{
			name: "exact pin on itself",
			recipe: `package: {name: top, version: '1'}
outputs:
  - name: a
    run_exports:
      - a 1 h1234567_0
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExactPinCycle(entries(t, tt.recipe))
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeCircularExactPin) {
					t.Fatalf("ExactPinCycle() error = %v, want %v", err, errors.ErrCodeCircularExactPin)
				}
				if !strings.Contains(err.Error(), "depends back on a") {
					t.Errorf("error %q does not name the loop", err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("ExactPinCycle() error = %v, want nil", err)
			}
		})
	}
}

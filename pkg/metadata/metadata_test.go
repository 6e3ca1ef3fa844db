package metadata

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/recipe"
	"github.com/matzehuels/metarender/pkg/tree"
	"github.com/matzehuels/metarender/pkg/variant"
)

func writeRecipe(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func load(t *testing.T, dir string, cfg config.Config, v variant.Variant) *Draft {
	t.Helper()
	d, err := Load(context.Background(), dir, cfg, v, namespace.EnvFromMap(nil), nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return d
}

func fromYAML(t *testing.T, text string, cfg config.Config, v variant.Variant) *Draft {
	t.Helper()
	doc, err := tree.DecodeMapping([]byte(text))
	if err != nil {
		t.Fatalf("DecodeMapping() error: %v", err)
	}
	d, err := FromDocument(doc, cfg, v, nil)
	if err != nil {
		t.Fatalf("FromDocument() error: %v", err)
	}
	return d
}

func resolve(t *testing.T, d *Draft) *Resolved {
	t.Helper()
	r, err := d.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	return r
}

func noHashing() config.Config {
	cfg := config.Default()
	off := false
	cfg.FilenameHashing = &off
	return cfg
}

const pyRecipe = `package:
  name: foo
  version: "1.0"
build:
  number: 2
requirements:
  build:
    - python
  run:
    - python
`

func TestLoadAndResolve(t *testing.T) {
	dir := writeRecipe(t, map[string]string{"meta.yaml": pyRecipe, "build.sh": "make"})
	d := load(t, dir, config.Default(), variant.Variant{"python": "3.6"})
	r := resolve(t, d)

	if r.Name() != "foo" || r.Version() != "1.0" {
		t.Errorf("Name(), Version() = %q, %q, want foo, 1.0", r.Name(), r.Version())
	}
	if got := r.BuildString(); got != "py36_2" {
		t.Errorf("BuildString() = %q, want py36_2", got)
	}
	if !regexp.MustCompile(`^py36h[0-9a-f]{7}_2$`).MatchString(r.BuildID()) {
		t.Errorf("BuildID() = %q, want py36h<hash>_2", r.BuildID())
	}
	if want := "foo-1.0-" + r.BuildID(); r.Dist() != want {
		t.Errorf("Dist() = %q, want %q", r.Dist(), want)
	}
	if !strings.HasSuffix(r.PkgFilename(), ".tar.bz2") {
		t.Errorf("PkgFilename() = %q", r.PkgFilename())
	}
	if n, ok := r.BuildNumber(); n != 2 || !ok {
		t.Errorf("BuildNumber() = %d, %v, want 2, true", n, ok)
	}
}

func TestLoadMissingRecipe(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), config.Default(), nil, namespace.EnvFromMap(nil), nil)
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Load() error = %v, want %v", err, errors.ErrCodeFileNotFound)
	}
}

func TestBuildStringNumpyTag(t *testing.T) {
	text := "package:\n  name: foo\n  version: '1.0'\nrequirements:\n  run:\n    - numpy\n"
	d := fromYAML(t, text, config.Default(), variant.Variant{"numpy": "1.15"})

	got, err := d.BuildString()
	if err != nil {
		t.Fatalf("BuildString() error: %v", err)
	}
	if got != "np115_0" {
		t.Errorf("BuildString() = %q, want np115_0", got)
	}
}

func TestBuildString(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		variant variant.Variant
		want    string
	}{
		{
			name: "unpinned numpy is skipped",
			text: "package: {name: foo, version: '1'}\nrequirements:\n  build:\n    - numpy\n  run:\n    - numpy\n",
			want: "0",
		},
		{
			name: "pinned numpy from build counts",
			text: "package: {name: foo, version: '1'}\nrequirements:\n  build:\n    - numpy\n  run:\n    - numpy >=1.11\n",
			want: "np111_0",
		},
		{
			name:    "several tags in fixed order",
			text:    "package: {name: foo, version: '1'}\nrequirements:\n  host:\n    - python\n    - perl\n  run:\n    - perl\n    - python\n",
			variant: variant.Variant{"python": "2.7", "perl": "5.26.2"},
			want:    "py27pl526_0",
		},
		{
			name:    "r uses three places",
			text:    "package: {name: foo, version: '1'}\nrequirements:\n  run:\n    - r-base\n",
			variant: variant.Variant{"r_base": "3.4.1"},
			want:    "r341_0",
		},
		{
			name:    "noarch python keeps the bare tag",
			text:    "package: {name: foo, version: '1'}\nbuild:\n  noarch: python\n  number: 3\nrequirements:\n  run:\n    - python\n",
			variant: variant.Variant{"python": "3.6"},
			want:    "py_3",
		},
		{
			name: "features",
			text: "package: {name: foo, version: '1'}\nbuild:\n  features:\n    - vc9\n    - debug\n",
			want: "vc9_debug_0",
		},
		{
			name: "explicit string wins",
			text: "package: {name: foo, version: '1'}\nbuild:\n  string: custom_1\n",
			want: "custom_1",
		},
		{
			name: "run only without variant is skipped",
			text: "package: {name: foo, version: '1'}\nrequirements:\n  run:\n    - python\n",
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fromYAML(t, tt.text, config.Default(), tt.variant)
			got, err := d.BuildString()
			if err != nil {
				t.Fatalf("BuildString() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildID(t *testing.T) {
	base := "package: {name: foo, version: '1'}\n"
	hash, err := fromYAML(t, base, config.Default(), nil).hash()
	if err != nil {
		t.Fatalf("hash() error: %v", err)
	}

	tests := []struct {
		name  string
		build string
		want  string
	}{
		{"synthesized", "", hash + "_0"},
		{"number only", "build:\n  string: '5'\n", hash + "_5"},
		{"text and number", "build:\n  string: custom_1\n", "custom" + hash + "_1"},
		{"no separator", "build:\n  string: abc\n", "abc" + hash},
		{"existing hash segment", "build:\n  string: py36h0000000_1\n", "py36" + hash + "_1"},
		{"trailing tokens kept", "build:\n  string: a_b_2\n", "a_b" + hash + "_2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fromYAML(t, base+tt.build, config.Default(), nil).BuildID()
			if err != nil {
				t.Fatalf("BuildID() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildID() = %q, want %q", got, tt.want)
			}
		})
	}

	got, err := fromYAML(t, base+"build:\n  string: custom_1\n", noHashing(), nil).BuildID()
	if err != nil || got != "custom_1" {
		t.Errorf("BuildID() without hashing = %q, %v, want custom_1", got, err)
	}

	_, err = fromYAML(t, base+"build:\n  string: a-b\n", config.Default(), nil).BuildID()
	if !errors.Is(err, errors.ErrCodeSemantic) {
		t.Errorf("BuildID() with '-' error = %v, want %v", err, errors.ErrCodeSemantic)
	}
}

func TestHashIgnoresBuildNumber(t *testing.T) {
	dir1 := writeRecipe(t, map[string]string{"meta.yaml": pyRecipe, "build.sh": "make"})
	dir2 := writeRecipe(t, map[string]string{
		"meta.yaml": strings.Replace(pyRecipe, "number: 2", "number: 3", 1),
		"build.sh":  "make",
	})
	v := variant.Variant{"python": "3.6"}
	r1 := resolve(t, load(t, dir1, config.Default(), v))
	r2 := resolve(t, load(t, dir2, config.Default(), v))

	h1, err1 := r1.Hash()
	h2, err2 := r2.Hash()
	if err1 != nil || err2 != nil {
		t.Fatalf("Hash() errors: %v, %v", err1, err2)
	}
	if h1 != h2 {
		t.Errorf("Hash() differs across build numbers: %s vs %s", h1, h2)
	}
	if r1.BuildID() == r2.BuildID() {
		t.Errorf("BuildID() = %q for both build numbers", r1.BuildID())
	}
}

func TestNameValidation(t *testing.T) {
	tests := []struct {
		text    string
		code    errors.Code
		message string
	}{
		{"package: {name: Foo, version: '1'}\n", errors.ErrCodeSemantic, "must be lowercase"},
		{"package: {version: '1'}\n", errors.ErrCodeSchema, "package/name missing"},
		{"package: {name: 'a b', version: '1'}\n", errors.ErrCodeSemantic, "bad character"},
		{"package: {name: foo}\n", errors.ErrCodeSchema, "package/version missing"},
		{"package: {name: foo, version: '.1'}\n", errors.ErrCodeSemantic, "can't start with period"},
		{"package: {name: foo, version: '1'}\nrequirements:\n  run:\n    - foo\n", errors.ErrCodeSemantic, "foo cannot depend on itself"},
		{"package: {name: foo, version: '1'}\nrequirements:\n  run:\n    - numpy>=1.10\n", errors.ErrCodeSemantic, "Perhaps you meant"},
		{"package: {name: foo, version: '1'}\nrequirements:\n  run:\n    - {pip: [six]}\n", errors.ErrCodeSemantic, "Received dictionary"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			_, err := fromYAML(t, tt.text, config.Default(), nil).Resolve()
			if err == nil {
				t.Fatal("Resolve() error = nil, want error")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("code = %v, want %v", errors.GetCode(err), tt.code)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.message)
			}
		})
	}
}

func TestParseUntilResolved(t *testing.T) {
	text := `package:
  name: foo
  version: "1.2"
source:
  url: https://example.com/foo-${PKG_VERSION}.tar.gz
`
	d := load(t, writeRecipe(t, map[string]string{"meta.yaml": text}), config.Default(), nil)
	if diff := cmp.Diff([]string{"PKG_VERSION"}, d.Undefined()); diff != "" {
		t.Errorf("Undefined() after Load mismatch (-want +got):\n%s", diff)
	}

	if err := d.ParseUntilResolved(context.Background(), Options{}); err != nil {
		t.Fatalf("ParseUntilResolved() error: %v", err)
	}
	url, _ := tree.Lookup(d.Document(), "source/url")
	if url != tree.Scalar("https://example.com/foo-1.2.tar.gz") {
		t.Errorf("source/url = %v, want the rendered version", url)
	}
	if len(d.Undefined()) != 0 {
		t.Errorf("Undefined() = %v, want none", d.Undefined())
	}
}

func TestParseUntilResolvedLearnedCondition(t *testing.T) {
	text := `package:
  name: foo
  version: "1.2"
build:
  number: 2
  string: %{ if PKG_VERSION == "1.2" }stable%{ else }dev%{ endif }_${PKG_BUILDNUM + 1}
requirements:
  run:
    - ${pin_compatible("numpy", null, null, "x.x", "x")}
`
	d := load(t, writeRecipe(t, map[string]string{"meta.yaml": text}), config.Default(), variant.Variant{"numpy": "1.15"})
	if err := d.ParseUntilResolved(context.Background(), Options{}); err != nil {
		t.Fatalf("ParseUntilResolved() error: %v", err)
	}
	want := map[string]any{
		"package":      map[string]any{"name": "foo", "version": "1.2"},
		"build":        map[string]any{"number": "2", "string": "stable_3"},
		"requirements": map[string]any{"run": []any{"numpy >=1.15,<2"}},
	}
	if diff := cmp.Diff(want, tree.ToNative(d.Document())); diff != "" {
		t.Errorf("rendered document mismatch (-want +got):\n%s", diff)
	}
}

func TestParseUntilResolvedUnresolved(t *testing.T) {
	text := "package:\n  name: foo\n  version: \"${GIT_DESCRIBE_TAG}\"\n"
	d := load(t, writeRecipe(t, map[string]string{"meta.yaml": text}), config.Default(), nil)

	err := d.ParseUntilResolved(context.Background(), Options{})
	if !errors.Is(err, errors.ErrCodeUnresolvedReference) {
		t.Fatalf("ParseUntilResolved() error = %v, want %v", err, errors.ErrCodeUnresolvedReference)
	}
	if !strings.Contains(err.Error(), "GIT_DESCRIBE_TAG") || !strings.Contains(err.Error(), "enable source downloading") {
		t.Errorf("error = %q, want the variable name and the hint", err.Error())
	}
}

func TestParseAgainCancelled(t *testing.T) {
	d := load(t, writeRecipe(t, map[string]string{"meta.yaml": pyRecipe}), config.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.ParseAgain(ctx, Options{}); err == nil {
		t.Error("ParseAgain() error = nil with a cancelled context")
	}
}

func TestParseAgainSelectors(t *testing.T) {
	text := `package:
  name: foo
  version: "1.0"
requirements:
  run:
    - pywin32  # [win]
    - libgcc   # [linux]
`
	dir := writeRecipe(t, map[string]string{"meta.yaml": text})
	tests := []struct {
		subdir string
		want   []string
	}{
		{"linux-64", []string{"libgcc"}},
		{"win-64", []string{"pywin32"}},
	}
	for _, tt := range tests {
		t.Run(tt.subdir, func(t *testing.T) {
			d := load(t, dir, config.Default().WithPlatform(tt.subdir), nil)
			if diff := cmp.Diff(tt.want, recipe.Strings(d.doc, "requirements/run")); diff != "" {
				t.Errorf("requirements/run mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAgainFiltersOnce(t *testing.T) {
	text := `package:
  name: foo
  version: "1.0"
about:
  summary: ${label}
`
	d := load(t, writeRecipe(t, map[string]string{"meta.yaml": text}), config.Default(), variant.Variant{"label": "tools [beta]"})
	if got := recipe.String(d.doc, "about/summary"); got != "tools [beta]" {
		t.Errorf("about/summary = %q, want the templated value kept", got)
	}
}

func TestParseAgainRequirementsTxt(t *testing.T) {
	dir := writeRecipe(t, map[string]string{
		"meta.yaml":        "package:\n  name: foo\n  version: '1'\n",
		"requirements.txt": "# deps\nsix>=1.0\nrequests\n",
	})
	d := load(t, dir, config.Default(), nil)
	want := []string{"six >=1.0", "requests"}
	if diff := cmp.Diff(want, recipe.Strings(d.doc, "requirements/run")); diff != "" {
		t.Errorf("requirements/run mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAgainSectionFiles(t *testing.T) {
	dir := writeRecipe(t, map[string]string{
		"meta.yaml":           "package:\n  name: foo\n  version: '1'\nrequirements:\n  run:\n    - python\nabout:\n  license: MIT\n",
		"recipe_append.yaml":  "requirements:\n  run:\n    - six\n",
		"recipe_clobber.yaml": "about:\n  license: BSD\n",
	})
	d := load(t, dir, config.Default(), nil)
	if diff := cmp.Diff([]string{"python", "six"}, recipe.Strings(d.doc, "requirements/run")); diff != "" {
		t.Errorf("requirements/run mismatch (-want +got):\n%s", diff)
	}
	if got := recipe.String(d.doc, "about/license"); got != "BSD" {
		t.Errorf("about/license = %q, want BSD", got)
	}
}

func TestParseAgainOsxApp(t *testing.T) {
	text := "package:\n  name: foo\n  version: '1'\nbuild:\n  osx_is_app: true\nrequirements:\n  run:\n    - python\n"
	dir := writeRecipe(t, map[string]string{"meta.yaml": text})

	d := load(t, dir, config.Default().WithPlatform("osx-64"), nil)
	if diff := cmp.Diff([]string{"python", "python.app"}, recipe.Strings(d.doc, "requirements/run")); diff != "" {
		t.Errorf("requirements/run on osx mismatch (-want +got):\n%s", diff)
	}
	d = load(t, dir, config.Default(), nil)
	if diff := cmp.Diff([]string{"python"}, recipe.Strings(d.doc, "requirements/run")); diff != "" {
		t.Errorf("requirements/run on linux mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAgainRejects(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{"dash in features", "package: {name: foo, version: '1'}\nbuild:\n  features:\n    - my-feature\n", "disallowed character in features"},
		{"pip dict", "package: {name: foo, version: '1'}\nrequirements:\n  build:\n    - pip:\n        - six\n", "Dictionaries are not supported"},
		{"unknown key", "package: {name: foo, version: '1'}\nbuild:\n  bogus: 1\n", "unknown key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeRecipe(t, map[string]string{"meta.yaml": tt.text})
			_, err := Load(context.Background(), dir, config.Default(), nil, namespace.EnvFromMap(nil), nil)
			if err == nil || !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.message)
			}
		})
	}
}

const splitRecipe = `package:
  name: foo-split
  version: "2.0"
build:
  number: 1
  entry_points:
    - foo = foo:main
requirements:
  build:
    - python
  run:
    - libfoo
test:
  commands:
    - foo --help
  requires:
    - pytest
extra:
  maintainer: someone
outputs:
  - name: libfoo
    requirements:
      build:
        - cmake
      run:
        - libfoo
        - zlib
    about:
      license: MIT
  - name: foo
    version: "2.1"
    noarch: python
    requirements:
      - libfoo
`

func TestOutputMetadata(t *testing.T) {
	dir := writeRecipe(t, map[string]string{"meta.yaml": splitRecipe})
	d := load(t, dir, config.Default(), nil)
	outs := recipe.Outputs(d.doc)
	if len(outs) != 2 {
		t.Fatalf("Outputs() = %d descriptors, want 2", len(outs))
	}

	lib, err := d.OutputMetadata(outs[0])
	if err != nil {
		t.Fatalf("OutputMetadata(libfoo) error: %v", err)
	}
	r := resolve(t, lib)
	if r.Name() != "libfoo" || r.Version() != "2.0" {
		t.Errorf("libfoo Name(), Version() = %q, %q", r.Name(), r.Version())
	}
	if lib.RecipeFile() != "" || lib.RecipeDir() != "" {
		t.Errorf("output copy keeps recipe paths %q, %q", lib.RecipeDir(), lib.RecipeFile())
	}
	if diff := cmp.Diff([]string{"zlib"}, recipe.Strings(lib.doc, "requirements/run")); diff != "" {
		t.Errorf("libfoo run mismatch (-want +got):\n%s", diff)
	}
	if got := recipe.Strings(lib.doc, "test/commands"); len(got) != 0 {
		t.Errorf("libfoo test/commands = %v, want none", got)
	}
	if got := recipe.Strings(lib.doc, "test/requires"); len(got) != 1 {
		t.Errorf("libfoo test/requires = %v, want the parent's", got)
	}
	if lib.doc.Ensure("build").Has("entry_points") {
		t.Error("libfoo inherited the parent's entry points")
	}
	if got := recipe.String(lib.doc, "about/license"); got != "MIT" {
		t.Errorf("libfoo about/license = %q, want MIT", got)
	}
	parent, _ := tree.Lookup(lib.doc, "extra/parent_recipe/name")
	if parent != tree.Scalar("foo-split") {
		t.Errorf("extra/parent_recipe/name = %v, want foo-split", parent)
	}
	if got := recipe.String(lib.doc, "extra/maintainer"); got != "someone" {
		t.Errorf("extra/maintainer = %q, want it kept", got)
	}

	foo, err := d.OutputMetadata(outs[1])
	if err != nil {
		t.Fatalf("OutputMetadata(foo) error: %v", err)
	}
	if v, _ := foo.Version(); v != "2.1" {
		t.Errorf("foo Version() = %q, want 2.1", v)
	}
	if foo.Noarch() != "python" {
		t.Errorf("foo Noarch() = %q, want python", foo.Noarch())
	}
	want := []string{"libfoo"}
	if diff := cmp.Diff(want, recipe.Strings(foo.doc, "requirements/build")); diff != "" {
		t.Errorf("foo build mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, recipe.Strings(foo.doc, "requirements/run")); diff != "" {
		t.Errorf("foo run mismatch (-want +got):\n%s", diff)
	}

	// the source draft is untouched
	if name, _ := d.Name(); name != "foo-split" {
		t.Errorf("parent Name() = %q after OutputMetadata", name)
	}
}

func TestOutputMetadataTypedOutput(t *testing.T) {
	d := fromYAML(t, "package: {name: foo, version: '1'}\n", config.Default(), nil)
	out := recipe.NewOutput(tree.NewMapping()).With("type", tree.Scalar("wheel"))
	om, err := d.OutputMetadata(out)
	if err != nil {
		t.Fatalf("OutputMetadata() error: %v", err)
	}
	if name, _ := om.Name(); name != "foo_wheel" {
		t.Errorf("Name() = %q, want foo_wheel", name)
	}
}

func TestUsesSubpackage(t *testing.T) {
	d := load(t, writeRecipe(t, map[string]string{"meta.yaml": splitRecipe}), config.Default(), nil)
	if !d.UsesSubpackage() {
		t.Error("UsesSubpackage() = false with libfoo in run requirements")
	}

	pinned := `package:
  name: top
  version: "1"
requirements:
  run:
    - ${pin_subpackage("sub")}
outputs:
  - name: sub
`
	d = load(t, writeRecipe(t, map[string]string{"meta.yaml": pinned}), config.Default(), nil)
	if !d.UsesSubpackage() {
		t.Error("UsesSubpackage() = false with a pin_subpackage call")
	}

	plain := "package: {name: top, version: '1'}\nrequirements:\n  run:\n    - six\noutputs:\n  - name: sub\n"
	if fromYAML(t, plain, config.Default(), nil).UsesSubpackage() {
		t.Error("UsesSubpackage() = true without a reference")
	}
}

func TestResolvedIsIndependent(t *testing.T) {
	d := fromYAML(t, "package: {name: foo, version: '1'}\n", config.Default(), variant.Variant{"python": "3.6"})
	r := resolve(t, d)

	d.doc.Ensure("package").Set("name", tree.Scalar("bar"))
	v := r.Variant()
	v["python"] = "2.7"
	r.Section("package").Set("name", tree.Scalar("baz"))

	if r.Name() != "foo" || recipe.String(r.doc, "package/name") != "foo" {
		t.Errorf("Resolved changed through a copy: %q", r.Name())
	}
	if r.Variant().Get("python") != "3.6" {
		t.Errorf("Variant() changed through a copy")
	}
}

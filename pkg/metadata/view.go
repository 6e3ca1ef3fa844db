package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/contenthash"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/matchspec"
	"github.com/matzehuels/metarender/pkg/recipe"
	"github.com/matzehuels/metarender/pkg/tree"
	"github.com/matzehuels/metarender/pkg/variant"
)

// Requirement phases.
const (
	PhaseBuild = "build"
	PhaseHost  = "host"
	PhaseRun   = "run"
)

// shortTag maps a tracked interpreter onto its build-string tag.
type shortTag struct {
	tag    string
	names  []string
	places int
}

// shortTags are appended to synthesized build strings in this order.
var shortTags = []shortTag{
	{"np", []string{"numpy"}, 2},
	{"py", []string{"python"}, 2},
	{"pl", []string{"perl"}, 2},
	{"lua", []string{"lua"}, 2},
	{"r", []string{"r", "r-base"}, 3},
}

// view is the read side shared by Draft and Resolved.
type view struct {
	doc      *tree.Mapping
	cfg      config.Config
	variant  variant.Variant
	path     string // recipe directory, "" for output copies
	metaPath string // recipe document, "" for output copies
	final    bool
	logger   *log.Logger
}

func (v view) clone() view {
	v.doc = v.doc.Clone()
	v.variant = v.variant.Clone()
	return v
}

// Value returns a copy of a "section/key" field, or its typed default.
func (v view) Value(field string) tree.Value {
	val, _ := recipe.GetValue(v.doc, field)
	return tree.Clone(val)
}

// Section returns a copy of a top-level section.
func (v view) Section(name string) *tree.Mapping {
	return recipe.Section(v.doc, name).Clone()
}

// Document returns a copy of the whole recipe document.
func (v view) Document() *tree.Mapping { return v.doc.Clone() }

// Config returns the build configuration.
func (v view) Config() config.Config { return v.cfg }

// Variant returns a copy of the variant the recipe is rendered for.
func (v view) Variant() variant.Variant { return v.variant.Clone() }

// RecipeDir returns the recipe directory, empty for output copies.
func (v view) RecipeDir() string { return v.path }

// RecipeFile returns the recipe document path, empty for output copies.
func (v view) RecipeFile() string { return v.metaPath }

// Noarch returns build/noarch, empty when unset or false.
func (v view) Noarch() string {
	val, ok := recipe.GetValue(v.doc, "build/noarch")
	if !ok || !recipe.Truthy(val) {
		return ""
	}
	return recipe.String(v.doc, "build/noarch")
}

// NoarchPython reports build/noarch_python.
func (v view) NoarchPython() bool { return recipe.Bool(v.doc, "build/noarch_python", false) }

// Skip reports build/skip.
func (v view) Skip() bool { return recipe.Bool(v.doc, "build/skip", false) }

// IncludeRecipe reports build/include_recipe, true by default.
func (v view) IncludeRecipe() bool { return recipe.Bool(v.doc, "build/include_recipe", true) }

func (v view) name() (string, error) {
	name := recipe.String(v.doc, "package/name")
	if name == "" {
		return "", errors.New(errors.ErrCodeSchema, "package/name missing in: %q", v.metaPath)
	}
	if name != strings.ToLower(name) {
		return "", errors.New(errors.ErrCodeSemantic, "package/name must be lowercase, got: %q", name)
	}
	if err := errors.CheckBadChars(name, errors.FieldPackageName); err != nil {
		return "", err
	}
	return name, nil
}

func (v view) version() (string, error) {
	val, present := recipe.GetValue(v.doc, "package/version")
	s, ok := val.(tree.Scalar)
	if !present || !ok {
		return "", errors.New(errors.ErrCodeSchema, "package/version missing in: %q", v.metaPath)
	}
	version := string(s)
	if err := errors.CheckBadChars(version, errors.FieldPackageVersion); err != nil {
		return "", err
	}
	if v.final && strings.HasPrefix(version, ".") {
		return "", errors.New(errors.ErrCodeSemantic, "Fully-rendered version can't start with period - got %s", version)
	}
	return version, nil
}

// buildNumber returns build/number and whether it parsed as an integer.
func (v view) buildNumber() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(recipe.String(v.doc, "build/number")))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (v view) dependencies(phase string) ([]matchspec.MatchSpec, error) {
	name, err := v.name()
	if err != nil {
		return nil, err
	}
	val, _ := recipe.GetValue(v.doc, "requirements/"+phase)
	var items tree.Sequence
	switch t := val.(type) {
	case tree.Sequence:
		items = t
	case tree.Scalar:
		if t != "" {
			items = tree.Sequence{t}
		}
	case *tree.Mapping:
		items = tree.Sequence{t}
	}

	out := make([]matchspec.MatchSpec, 0, len(items))
	for _, item := range items {
		s, ok := item.(tree.Scalar)
		if !ok {
			return nil, errors.New(errors.ErrCodeSemantic,
				"Received dictionary as spec.  Note that pip requirements are not supported in recipes.")
		}
		if strings.TrimSpace(string(s)) == "" {
			continue
		}
		ms, err := matchspec.Parse(string(s))
		if err != nil {
			return nil, err
		}
		if ms.Name == name {
			return nil, errors.New(errors.ErrCodeSemantic, "%s cannot depend on itself", name)
		}
		out = append(out, ms)
	}
	return out, nil
}

func (v view) buildString() (string, error) {
	if s := recipe.String(v.doc, "build/string"); s != "" {
		return s, nil
	}
	run, err := v.dependencies(PhaseRun)
	if err != nil {
		return "", err
	}
	inBuild := make(map[string]bool)
	for _, phase := range []string{PhaseBuild, PhaseHost} {
		deps, err := v.dependencies(phase)
		if err != nil {
			return "", err
		}
		for _, ms := range deps {
			inBuild[ms.Name] = true
		}
	}

	noarch := v.Noarch()
	noarchPython := v.NoarchPython()
	var b strings.Builder
	for _, st := range shortTags {
		for _, ms := range run {
			for _, name := range st.names {
				if ms.Name != name {
					continue
				}
				key := variantKey(name)
				bound := v.variant.Get(key) != ""
				if !inBuild[name] && !bound {
					continue
				}
				// numpy only counts when actually pinned
				if name == "numpy" && !ms.HasVersion() && !bound {
					continue
				}
				if noarch == name || (noarchPython && name == "python") {
					b.WriteString(st.tag)
					continue
				}
				b.WriteString(st.tag)
				b.WriteString(joinVersion(v.tagVersion(st), st.places))
			}
		}
	}
	if b.Len() > 0 {
		b.WriteByte('_')
	}
	if features := recipe.Strings(v.doc, "build/features"); len(features) > 0 {
		b.WriteString(strings.Join(features, "_"))
		b.WriteByte('_')
	}
	n, _ := v.buildNumber()
	b.WriteString(strconv.Itoa(n))
	return b.String(), nil
}

// tagVersion returns the variant version of the first bound name of st.
func (v view) tagVersion(st shortTag) string {
	for _, name := range st.names {
		if s := v.variant.GetDefault(variantKey(name)); s != "" {
			return s
		}
	}
	return ""
}

func joinVersion(version string, places int) string {
	parts := strings.Split(version, ".")
	if len(parts) > places {
		parts = parts[:places]
	}
	return strings.Join(parts, "")
}

// variantKey maps a package name onto its variant key ("r-base" -> "r_base").
func variantKey(name string) string { return strings.ReplaceAll(name, "-", "_") }

// hashInputs projects the document for the content hash.
func (v view) hashInputs() (contenthash.HashInputSet, error) {
	opts := contenthash.Options{
		IncludeRecipe: v.cfg.RecipeIncluded() && v.IncludeRecipe(),
		IgnoreVersion: v.cfg.IgnoreVersion,
	}
	if v.path != "" {
		opts.RecipeDir = v.path
	}
	if v.metaPath != "" {
		opts.RecipeFile = filepath.Base(v.metaPath)
	}
	return contenthash.Inputs(v.doc, opts)
}

func (v view) hash() (string, error) {
	set, err := v.hashInputs()
	if err != nil {
		return "", err
	}
	return contenthash.Compute(set, v.cfg.HashLength)
}

func (v view) buildID() (string, error) {
	out := recipe.String(v.doc, "build/string")
	if out != "" {
		if err := errors.CheckBadChars(out, errors.FieldBuildString); err != nil {
			return "", err
		}
	} else {
		s, err := v.buildString()
		if err != nil {
			return "", err
		}
		out = s
	}
	if !v.cfg.Hashing() {
		return out, nil
	}

	hash, err := v.hash()
	if err != nil {
		return "", err
	}
	pattern := regexp.MustCompile(fmt.Sprintf("h[0-9a-f]{%d}", v.cfg.HashLength))
	if pattern.MatchString(out) {
		return pattern.ReplaceAllLiteralString(out, hash), nil
	}

	head, tail, split := cutLast(out, "_")
	if _, err := strconv.Atoi(head); err == nil {
		out = hash + "_" + head
	} else {
		out = head + hash
	}
	if split {
		out += "_" + tail
	}
	return out, nil
}

// cutLast splits s around the last sep.
func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

func (v view) dist() (string, error) {
	name, err := v.name()
	if err != nil {
		return "", err
	}
	version, err := v.version()
	if err != nil {
		return "", err
	}
	id, err := v.buildID()
	if err != nil {
		return "", err
	}
	return name + "-" + version + "-" + id, nil
}

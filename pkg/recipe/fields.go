package recipe

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/tree"
)

// Section names with special handling.
const (
	SectionExtra   = "extra"
	SectionOutputs = "outputs"
	SectionSource  = "source"
)

// Fields is the whitelist of keys allowed in each known section.
var Fields = map[string][]string{
	"package": {"name", "version"},
	"source": {"fn", "url", "md5", "sha1", "sha256", "path",
		"git_url", "git_tag", "git_branch", "git_rev", "git_depth",
		"hg_url", "hg_tag",
		"svn_url", "svn_rev", "svn_ignore_externals",
		"patches"},
	"build": {"number", "string", "entry_points", "osx_is_app",
		"features", "track_features", "preserve_egg_dir",
		"no_link", "binary_relocation", "script", "noarch", "noarch_python",
		"has_prefix_files", "binary_has_prefix_files", "ignore_prefix_files",
		"detect_binary_files_with_prefix", "skip_compile_pyc", "rpaths",
		"script_env", "always_include_files", "skip", "msvc_compiler",
		"pin_depends", "include_recipe",
		"preferred_env", "preferred_env_executable_paths", "run_exports"},
	"requirements": {"build", "host", "run", "conflicts", "run_constrained"},
	"app":          {"entry", "icon", "summary", "type", "cli_opts", "own_environment"},
	"test":         {"requires", "commands", "files", "imports", "source_files"},
	"about": {"home", "dev_url", "doc_url", "license_url",
		"license", "summary", "description", "license_family",
		"license_file", "readme"},
}

// sectionOrder is the iteration order over Fields for type checks.
var sectionOrder = []string{"package", "source", "build", "requirements", "app", "test", "about"}

// DefaultKind is the default value shape of a field.
type DefaultKind int

const (
	DefaultList DefaultKind = iota
	DefaultText
	DefaultBool
)

// DefaultStructs gives absent fields a typed default.
var DefaultStructs = map[string]DefaultKind{
	"build/entry_points":                   DefaultList,
	"build/features":                       DefaultList,
	"source/patches":                       DefaultList,
	"build/script":                         DefaultList,
	"build/script_env":                     DefaultList,
	"build/run_exports":                    DefaultList,
	"build/track_features":                 DefaultList,
	"requirements/build":                   DefaultList,
	"requirements/host":                    DefaultList,
	"requirements/run":                     DefaultList,
	"requirements/conflicts":               DefaultList,
	"requirements/run_constrained":         DefaultList,
	"test/requires":                        DefaultList,
	"test/files":                           DefaultList,
	"test/source_files":                    DefaultList,
	"test/commands":                        DefaultList,
	"test/imports":                         DefaultList,
	"package/version":                      DefaultText,
	"build/string":                         DefaultText,
	"build/pin_depends":                    DefaultText,
	"source/svn_rev":                       DefaultText,
	"source/git_tag":                       DefaultText,
	"source/git_branch":                    DefaultText,
	"source/md5":                           DefaultText,
	"source/git_rev":                       DefaultText,
	"source/path":                          DefaultText,
	"source/git_url":                       DefaultText,
	"build/osx_is_app":                     DefaultBool,
	"build/preserve_egg_dir":               DefaultBool,
	"build/binary_relocation":              DefaultBool,
	"build/noarch":                         DefaultText,
	"build/noarch_python":                  DefaultBool,
	"build/detect_binary_files_with_prefix": DefaultBool,
	"build/skip":                           DefaultBool,
	"build/skip_compile_pyc":               DefaultList,
	"build/preferred_env":                  DefaultText,
	"build/preferred_env_executable_paths": DefaultList,
	"app/own_environment":                  DefaultBool,
}

// YAML 1.1 boolean spellings, compared case-insensitively.
var (
	trues  = map[string]bool{"y": true, "on": true, "true": true, "yes": true}
	falses = map[string]bool{"n": true, "no": true, "false": true, "off": true}
)

// CheckFields rejects unknown sections and unknown keys within known
// sections. The extra section is free-form and outputs is a list of
// descriptors checked elsewhere.
func CheckFields(doc *tree.Mapping) error {
	for _, section := range doc.Keys() {
		if section == SectionExtra || section == SectionOutputs {
			continue
		}
		allowed, ok := Fields[section]
		if !ok {
			return errors.New(errors.ErrCodeSchema, "unknown section: %s", section)
		}
		sub, ok := doc.Mapping(section)
		if !ok {
			continue
		}
		for _, key := range sub.Keys() {
			if !slices.Contains(allowed, key) {
				return errors.New(errors.ErrCodeSchema, "in section %q: unknown key %q", section, key)
			}
		}
	}
	return nil
}

// Section returns a top-level section as a mapping, or an empty mapping.
func Section(doc *tree.Mapping, name string) *tree.Mapping {
	if m, ok := doc.Mapping(name); ok {
		return m
	}
	return tree.NewMapping()
}

// GetValue returns the value of a "section/key" field. Absent fields with a
// known default shape yield that default (an empty sequence, an empty
// string, or "false").
func GetValue(doc *tree.Mapping, field string) (tree.Value, bool) {
	section, key, ok := strings.Cut(field, "/")
	if !ok {
		panic(fmt.Sprintf("recipe: field %q is not section/key", field))
	}
	if sec, ok := doc.Mapping(section); ok {
		if v, ok := sec.Get(key); ok {
			return v, true
		}
	}
	switch kind, ok := DefaultStructs[field]; {
	case !ok:
		return nil, false
	case kind == DefaultList:
		return tree.Sequence{}, false
	case kind == DefaultBool:
		return tree.Scalar("false"), false
	default:
		return tree.Scalar(""), false
	}
}

// String returns a field's scalar text, or "" when absent or not a scalar.
func String(doc *tree.Mapping, field string) string {
	v, _ := GetValue(doc, field)
	s, _ := v.(tree.Scalar)
	return string(s)
}

// Strings returns a field as a list of strings. A scalar is a one-element
// list. Non-scalar items are skipped.
func Strings(doc *tree.Mapping, field string) []string {
	v, _ := GetValue(doc, field)
	if s, ok := v.(tree.Scalar); ok && s == "" {
		return nil
	}
	if out := tree.Strings(v); len(out) > 0 {
		return out
	}
	return nil
}

// Bool interprets a field with YAML 1.1 boolean spellings. Any other
// non-empty value is true; an absent field yields def.
func Bool(doc *tree.Mapping, field string, def bool) bool {
	v, present := GetValue(doc, field)
	if !present {
		return def
	}
	return Truthy(v)
}

// Truthy interprets a value with YAML 1.1 boolean spellings.
func Truthy(v tree.Value) bool {
	s, ok := v.(tree.Scalar)
	if !ok {
		return !tree.IsEmpty(v)
	}
	lower := strings.ToLower(string(s))
	switch {
	case trues[lower]:
		return true
	case falses[lower], lower == "":
		return false
	default:
		return true
	}
}

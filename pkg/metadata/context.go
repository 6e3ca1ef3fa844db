package metadata

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/matchspec"
	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/recipe"
	"github.com/matzehuels/metarender/pkg/selector"
	"github.com/matzehuels/metarender/pkg/template"
)

// Default pin expressions.
const (
	defaultMinPin = "x.x.x.x.x.x"
	defaultMaxPin = "x"
)

// nativeCompilers maps platform and language onto the compiler package.
var nativeCompilers = map[string]map[string]string{
	"linux": {"c": "gcc", "cxx": "gxx", "fortran": "gfortran"},
	"osx":   {"c": "clang", "cxx": "clangxx", "fortran": "gfortran"},
	"win":   {"fortran": "gfortran"},
}

// winCompilers follows the compiler each python release was built with.
var winCompilers = map[string]string{
	"2.7": "vs2008",
	"3.3": "vs2010",
	"3.4": "vs2010",
	"3.5": "vs2015",
}

const defaultWinCompiler = "vs2015"

// templateContext assembles the variables and functions of one parse.
func (d *Draft) templateContext(ns *namespace.Namespace, opts Options) template.Context {
	vars := make(map[string]cty.Value)
	for k, val := range ns.Vars() {
		vars[k] = ctyValue(val)
	}
	for k, s := range d.variant {
		vars[k] = cty.StringVal(s)
	}
	environ := d.env.Map()
	for k, s := range d.buildVars() {
		vars[k] = cty.StringVal(s)
		environ[k] = s
	}
	vars["environ"] = stringMap(environ)

	return template.Context{
		Variables: vars,
		Functions: map[string]function.Function{
			"pin_subpackage":  d.pinSubpackageFunc(opts),
			"pin_compatible":  d.pinCompatibleFunc(opts),
			"compiler":        d.compilerFunc(),
			"load_file_regex": d.loadFileRegexFunc(opts),
			"env":             envFunc(environ),
		},
	}
}

// buildVars are the values the recipe learned about itself so far.
func (d *Draft) buildVars() map[string]string {
	vars := map[string]string{
		"SUBDIR":          d.cfg.HostSubdir,
		"target_platform": d.targetPlatform(),
	}
	if d.path != "" {
		vars["RECIPE_DIR"] = d.path
	}
	if s := recipe.String(d.doc, "package/name"); s != "" {
		vars["PKG_NAME"] = s
	}
	if s := recipe.String(d.doc, "package/version"); s != "" {
		vars["PKG_VERSION"] = s
	}
	if n, ok := d.buildNumber(); ok {
		vars["PKG_BUILDNUM"] = strconv.Itoa(n)
	}
	return vars
}

func (d *Draft) targetPlatform() string {
	if s := d.variant.Get("target_platform"); s != "" {
		return s
	}
	return d.cfg.HostSubdir
}

func ctyValue(v selector.Value) cty.Value {
	switch x := v.Native().(type) {
	case bool:
		return cty.BoolVal(x)
	case int64:
		return cty.NumberIntVal(x)
	default:
		return cty.StringVal(v.Text())
	}
}

func stringMap(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(m))
	for k, s := range m {
		vals[k] = cty.StringVal(s)
	}
	return cty.MapVal(vals)
}

// optArgs is the variadic parameter shared by the helpers.
// Null arguments keep their default.
var optArgs = &function.Parameter{Name: "args", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true}

func optString(args []cty.Value, i int, def string) (string, error) {
	if i >= len(args) || args[i].IsNull() {
		return def, nil
	}
	s, err := convert.Convert(args[i], cty.String)
	if err != nil {
		return "", function.NewArgErrorf(i, "must be a string")
	}
	return s.AsString(), nil
}

func optBool(args []cty.Value, i int) (bool, error) {
	if i >= len(args) || args[i].IsNull() {
		return false, nil
	}
	b, err := convert.Convert(args[i], cty.Bool)
	if err != nil {
		return false, function.NewArgErrorf(i, "must be a bool")
	}
	return b.True(), nil
}

func (d *Draft) pinSubpackageFunc(opts Options) function.Function {
	return function.New(&function.Spec{
		Description: "Pins a dependency on another output of this recipe.",
		Params:      []function.Parameter{{Name: "name", Type: cty.String}},
		VarParam:    optArgs,
		Type:        function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			minPin, err := optString(args, 1, defaultMinPin)
			if err != nil {
				return cty.NilVal, err
			}
			maxPin, err := optString(args, 2, defaultMaxPin)
			if err != nil {
				return cty.NilVal, err
			}
			exact, err := optBool(args, 3)
			if err != nil {
				return cty.NilVal, err
			}
			pin, err := d.pinSubpackage(args[0].AsString(), minPin, maxPin, exact, opts)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(pin), nil
		},
	})
}

// pinSubpackage pins name against the outputs rendered so far. An output
// not rendered yet is pinned by name only.
func (d *Draft) pinSubpackage(name, minPin, maxPin string, exact bool, opts Options) (string, error) {
	if d.otherOutputs == nil {
		if opts.AllowNoOtherOutputs {
			return name, nil
		}
		return "", errors.New(errors.ErrCodeInternal,
			"pin_subpackage(%q) needs the other outputs of the recipe, none were given", name)
	}
	key, ok := d.otherOutputs.Lookup(name, d.variant.Key())
	if !ok {
		return name, nil
	}
	entry, _ := d.otherOutputs.Get(key)
	sub := entry.Meta
	if !exact {
		return strings.TrimSpace(name + " " + matchspec.ApplyPinExpressions(sub.Version(), minPin, maxPin)), nil
	}

	pin := strings.Join([]string{sub.Name(), sub.Version(), sub.BuildID()}, " ")
	// an earlier output pinning name exactly to something else means the
	// exact pins feed back into each other's hashes
	for _, earlier := range d.otherOutputs.Entries()[:d.otherOutputs.Index(key)] {
		deps := append(recipe.Strings(earlier.Meta.doc, "requirements/run"),
			recipe.Strings(earlier.Meta.doc, "build/run_exports")...)
		for _, dep := range deps {
			fields := strings.Fields(dep)
			if len(fields) == 3 && fields[0] == name && strings.Join(fields, " ") != pin {
				return "", errors.New(errors.ErrCodeCircularExactPin, "%s", ExactPinLoopMessage)
			}
		}
	}
	return pin, nil
}

// ExactPinLoopMessage explains a cycle of exact pins between outputs.
const ExactPinLoopMessage = "Infinite loop in subpackages. Exact pins in dependencies that contribute to the hash " +
	"often cause this. Can you change one or more exact pins to version bound constraints?"

func (d *Draft) pinCompatibleFunc(opts Options) function.Function {
	return function.New(&function.Spec{
		Description: "Pins a run dependency compatible with the version used at build time.",
		Params:      []function.Parameter{{Name: "name", Type: cty.String}},
		VarParam:    optArgs,
		Type:        function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			var strs [4]string
			defaults := [4]string{"", "", defaultMinPin, defaultMaxPin}
			for i := range strs {
				s, err := optString(args, i+1, defaults[i])
				if err != nil {
					return cty.NilVal, err
				}
				strs[i] = s
			}
			exact, err := optBool(args, 5)
			if err != nil {
				return cty.NilVal, err
			}
			pin, err := d.pinCompatible(args[0].AsString(), strs[0], strs[1], strs[2], strs[3], exact, opts)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(pin), nil
		},
	})
}

// pinCompatible derives a constraint from the version name is built
// against: the variant binding, else the first configured available entry.
func (d *Draft) pinCompatible(name, lower, upper, minPin, maxPin string, exact bool, opts Options) (string, error) {
	if opts.Permissive || opts.BypassEnvCheck {
		return name, nil
	}
	var installed []string
	if v := d.variant.Get(variantKey(name)); v != "" {
		installed = []string{v}
	} else if avail := d.cfg.Available[name]; len(avail) > 0 {
		installed = strings.Fields(avail[0])
	}

	var compat string
	switch {
	case exact && len(installed) > 0:
		compat = strings.Join(installed, " ")
	default:
		version := lower
		if version == "" && len(installed) > 0 {
			version = installed[0]
		}
		switch {
		case version == "":
		case upper != "":
			compat = ">=" + version + ",<" + upper
		default:
			compat = matchspec.ApplyPinExpressions(version, minPin, maxPin)
		}
	}
	if compat == "" {
		return "", errors.New(errors.ErrCodeUnsatisfiableVariant,
			"Could not get compatibility information for %s package.  Is it one of your build dependencies?", name)
	}
	return name + " " + compat, nil
}

func (d *Draft) compilerFunc() function.Function {
	return function.New(&function.Spec{
		Description: "Names the compiler package for a language and the target platform.",
		Params:      []function.Parameter{{Name: "language", Type: cty.String}},
		Type:        function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			c, err := d.compiler(args[0].AsString())
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(c), nil
		},
	})
}

// compiler returns "<compiler>_<target_platform>". The variant key
// "<language>_compiler" overrides the native compiler.
func (d *Draft) compiler(language string) (string, error) {
	c := d.variant.Get(language + "_compiler")
	if c == "" {
		native, err := d.nativeCompiler(language)
		if err != nil {
			return "", err
		}
		c = native
	}
	return c + "_" + d.targetPlatform(), nil
}

func (d *Draft) nativeCompiler(language string) (string, error) {
	plat := d.cfg.Platform
	if plat == "win" && (language == "c" || language == "cxx") {
		if c, ok := winCompilers[d.variant.Get("python")]; ok {
			return c, nil
		}
		return defaultWinCompiler, nil
	}
	if c, ok := nativeCompilers[plat][language]; ok {
		return c, nil
	}
	return "", errors.New(errors.ErrCodeSemantic, "no native %s compiler known for platform %q", language, plat)
}

func (d *Draft) loadFileRegexFunc(opts Options) function.Function {
	return function.New(&function.Spec{
		Description: "Matches a regular expression against a file in the recipe directory.",
		Params: []function.Parameter{
			{Name: "file", Type: cty.String},
			{Name: "pattern", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.List(cty.String)),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			groups, err := d.loadFileRegex(args[0].AsString(), args[1].AsString(), opts.Permissive)
			if err != nil {
				return cty.NilVal, err
			}
			vals := make([]cty.Value, len(groups))
			for i, g := range groups {
				vals[i] = cty.StringVal(g)
			}
			return cty.ListVal(vals), nil
		},
	})
}

// loadFileRegex returns the full match followed by every group. A missing
// file or no match yields empty strings when permissive.
func (d *Draft) loadFileRegex(file, pattern string, permissive bool) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSyntax, err, "load_file_regex pattern %q", pattern)
	}
	empty := make([]string, re.NumSubexp()+1)

	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.path, file)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if permissive {
			d.logger.Debug("load_file_regex: file not readable yet", "path", path, "err", err)
			return empty, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s is not a file that can be read", path)
	}
	m := re.FindSubmatch(data)
	if m == nil {
		if permissive {
			return empty, nil
		}
		return nil, errors.New(errors.ErrCodeSemantic, "pattern %q does not match %s", pattern, path)
	}
	out := make([]string, len(m))
	for i, g := range m {
		out[i] = string(g)
	}
	return out, nil
}

func envFunc(environ map[string]string) function.Function {
	return function.New(&function.Spec{
		Description: "Reads an environment variable with an optional default.",
		Params:      []function.Parameter{{Name: "name", Type: cty.String}},
		VarParam:    optArgs,
		Type:        function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if s, ok := environ[args[0].AsString()]; ok {
				return cty.StringVal(s), nil
			}
			def, err := optString(args, 1, "")
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(def), nil
		},
	})
}

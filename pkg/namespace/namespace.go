// Package namespace builds the evaluation namespace for one variant.
//
// The namespace feeds both selector evaluation and the templating adapter.
// It is derived from a build configuration, a variant and an explicit
// environment snapshot; it is built fresh for every (config, variant) pair
// and never mutated afterwards.
package namespace

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/selector"
	"github.com/matzehuels/metarender/pkg/variant"
)

// NonX86LinuxMachines each get a flag that is true when build_subdir is
// "linux-<machine>".
var NonX86LinuxMachines = []string{"armv6l", "armv7l", "aarch64", "ppc64le", "s390x"}

// featureEnvVars are the environment variables of the feature registry.
var featureEnvVars = []string{"FEATURE_DEBUG", "FEATURE_NOMKL", "FEATURE_OPT"}

// Env is an immutable snapshot of environment variables.
type Env struct {
	vars map[string]string
}

// EnvFromOS captures the current process environment.
func EnvFromOS() Env {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = v
		}
	}
	return Env{vars: vars}
}

// EnvFromMap copies m into a snapshot.
func EnvFromMap(m map[string]string) Env {
	vars := make(map[string]string, len(m))
	for k, v := range m {
		vars[k] = v
	}
	return Env{vars: vars}
}

// Get returns the value of key and whether it is set.
func (e Env) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Map returns a copy of the snapshot.
func (e Env) Map() map[string]string {
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Len returns the number of variables in the snapshot.
func (e Env) Len() int { return len(e.vars) }

// Namespace is the read-only identifier table for one variant.
type Namespace struct {
	vals map[string]selector.Value
}

// Lookup implements selector.Namespace.
func (n *Namespace) Lookup(name string) (selector.Value, bool) {
	v, ok := n.vals[name]
	return v, ok
}

// Names returns every identifier in sorted order.
func (n *Namespace) Names() []string {
	names := make([]string, 0, len(n.vals))
	for k := range n.vals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Vars returns a copy of the table for the templating adapter.
func (n *Namespace) Vars() map[string]selector.Value {
	out := make(map[string]selector.Value, len(n.vals))
	for k, v := range n.vals {
		out[k] = v
	}
	return out
}

// Features reads the feature registry from env: each FEATURE_<NAME> variable
// that is set must be "0" or "1" and yields the flag <name>.
func Features(env Env) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, key := range featureEnvVars {
		val, ok := env.Get(key)
		if !ok {
			continue
		}
		if val != "0" && val != "1" {
			return nil, errors.New(errors.ErrCodeSemantic,
				"did not expect environment variable '%s' being set to '%s' (not '0' or '1')", key, val)
		}
		out[strings.ToLower(strings.TrimPrefix(key, "FEATURE_"))] = val == "1"
	}
	return out, nil
}

// Build derives the namespace for cfg and v, overlaying env last.
//
// Platform flags come from cfg.BuildSubdir. Interpreter flags come from the
// variant (falling back to variant.Defaults): py is the major and minor
// digits of python concatenated ("3.6" gives 36), np likewise for numpy,
// pl and lua are strings, luajit is true for a lua 2.x. Feature flags from
// the registry come next, and every environment entry wins on collision.
func Build(cfg config.Config, v variant.Variant, env Env) (*Namespace, error) {
	plat := cfg.BuildSubdir
	vals := map[string]selector.Value{
		"linux":   selector.Bool(strings.HasPrefix(plat, "linux-")),
		"linux32": selector.Bool(plat == "linux-32"),
		"linux64": selector.Bool(plat == "linux-64"),
		"arm":     selector.Bool(strings.HasPrefix(plat, "linux-arm")),
		"osx":     selector.Bool(strings.HasPrefix(plat, "osx-")),
		"unix":    selector.Bool(strings.HasPrefix(plat, "linux-") || strings.HasPrefix(plat, "osx-")),
		"win":     selector.Bool(strings.HasPrefix(plat, "win-")),
		"win32":   selector.Bool(plat == "win-32"),
		"win64":   selector.Bool(plat == "win-64"),
		"x86":     selector.Bool(strings.HasSuffix(plat, "-32") || strings.HasSuffix(plat, "-64")),
		"x86_64":  selector.Bool(strings.HasSuffix(plat, "-64")),
	}

	nomkl, _ := env.Get("FEATURE_NOMKL")
	vals["nomkl"] = selector.Bool(nomkl != "" && nomkl != "0")

	py, err := majorMinor("python", v.GetDefault("python"))
	if err != nil {
		return nil, err
	}
	vals["py"] = selector.Int(py)
	vals["py3k"] = selector.Bool(py >= 30 && py < 40)
	vals["py2k"] = selector.Bool(py >= 20 && py < 30)
	for _, n := range []int64{26, 27, 33, 34, 35, 36} {
		vals["py"+strconv.FormatInt(n, 10)] = selector.Bool(py == n)
	}

	np, err := majorMinor("numpy", v.GetDefault("numpy"))
	if err != nil {
		return nil, err
	}
	vals["np"] = selector.Int(np)

	vals["pl"] = selector.String(v.GetDefault("perl"))

	lua := v.GetDefault("lua")
	vals["lua"] = selector.String(lua)
	vals["luajit"] = selector.Bool(strings.HasPrefix(lua, "2"))

	for _, machine := range NonX86LinuxMachines {
		vals[machine] = selector.Bool(plat == "linux-"+machine)
	}

	features, err := Features(env)
	if err != nil {
		return nil, err
	}
	for name, on := range features {
		vals[name] = selector.Bool(on)
	}

	for k, val := range env.vars {
		vals[k] = selector.String(val)
	}
	return &Namespace{vals: vals}, nil
}

// majorMinor concatenates the first two dot-separated parts of version.
func majorMinor(key, version string) (int64, error) {
	parts := strings.Split(version, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	n, err := strconv.ParseInt(strings.Join(parts, ""), 10, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeSemantic, "variant %s=%q is not a dotted version", key, version)
	}
	return n, nil
}

// Package matchspec parses single dependency tokens of the form
// "name [version [build]]" and derives pin constraints from versions.
package matchspec

import (
	"strconv"
	"strings"

	"github.com/matzehuels/metarender/pkg/errors"
)

// nameBadChars may not appear in a dependency name.
const nameBadChars = `=!@#$%^&*:;"'\|<>?/`

// operators are the comparison tokens that must be glued to a version.
var operators = map[string]bool{">": true, ">=": true, "=": true, "==": true, "!=": true, "<": true, "<=": true}

// MatchSpec is one parsed dependency token.
type MatchSpec struct {
	Name    string
	Version string
	Build   string
}

// Parse splits spec on whitespace into name, version and build.
//
// An operator written as its own token ("numpy >= 1.10") or glued to the
// name ("numpy>=1.10") is rejected with a corrected suggestion.
func Parse(spec string) (MatchSpec, error) {
	parts := strings.Fields(spec)
	if len(parts) == 0 {
		return MatchSpec{}, errors.New(errors.ErrCodeSemantic, "Invalid package specification: %q", spec)
	}
	name := parts[0]
	if i := strings.IndexAny(name, nameBadChars); i >= 0 {
		msg := "bad character '" + string(name[i]) + "' in package name dependency '" + name + "'"
		if i > 0 && strings.ContainsAny(name[i:i+1], "<>=!") {
			msg += "\nPerhaps you meant '" + strings.Join(append([]string{name[:i] + " " + name[i:]}, parts[1:]...), " ") + "'"
		}
		return MatchSpec{}, errors.New(errors.ErrCodeSemantic, "%s", msg)
	}
	if len(parts) >= 2 && operators[parts[1]] {
		msg := "bad character '" + parts[1] + "' in package version dependency '" + name + "'"
		if len(parts) >= 3 {
			msg += "\nPerhaps you meant '" + name + " " + parts[1] + parts[2] + "'"
		}
		return MatchSpec{}, errors.New(errors.ErrCodeSemantic, "%s", msg)
	}
	if len(parts) > 3 {
		return MatchSpec{}, errors.New(errors.ErrCodeSemantic, "Invalid package specification: %q", spec)
	}
	ms := MatchSpec{Name: name}
	if len(parts) > 1 {
		ms.Version = parts[1]
	}
	if len(parts) > 2 {
		ms.Build = parts[2]
	}
	return ms, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(spec string) MatchSpec {
	ms, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return ms
}

// String returns the whitespace-normalized token.
func (m MatchSpec) String() string {
	parts := []string{m.Name}
	if m.Version != "" {
		parts = append(parts, m.Version)
	}
	if m.Build != "" {
		parts = append(parts, m.Build)
	}
	return strings.Join(parts, " ")
}

// HasVersion reports whether a version constraint is present.
func (m MatchSpec) HasVersion() bool { return m.Version != "" }

// IsExact reports whether the token pins both version and build.
func (m MatchSpec) IsExact() bool { return m.Version != "" && m.Build != "" }

// NameOf returns the first whitespace-separated field of spec.
func NameOf(spec string) string {
	if f := strings.Fields(spec); len(f) > 0 {
		return f[0]
	}
	return ""
}

// ApplyPinExpressions turns a version into a ">=lower,<upper" constraint.
//
// Pins are written as dotted x's: minPin "x.x" keeps two version parts for
// the lower bound; maxPin "x" keeps one part for the upper bound and
// increments the last kept part. An empty pin omits that bound.
//
//	ApplyPinExpressions("1.2.3", "x.x.x.x.x.x", "x")  // ">=1.2.3,<2"
//	ApplyPinExpressions("1.2.3", "x.x", "x.x")        // ">=1.2,<1.3"
func ApplyPinExpressions(version, minPin, maxPin string) string {
	parts := strings.Split(version, ".")
	var bounds []string
	if n := pinLength(minPin); n > 0 {
		bounds = append(bounds, ">="+strings.Join(parts[:min(n, len(parts))], "."))
	}
	if n := pinLength(maxPin); n > 0 {
		kept := append([]string(nil), parts[:min(n, len(parts))]...)
		kept[len(kept)-1] = increment(kept[len(kept)-1])
		bounds = append(bounds, "<"+strings.Join(kept, "."))
	}
	return strings.Join(bounds, ",")
}

func pinLength(pin string) int {
	if pin == "" {
		return 0
	}
	return len(strings.Split(pin, "."))
}

// increment bumps a numeric version part, or the last character of a
// non-numeric one.
func increment(part string) string {
	if n, err := strconv.Atoi(part); err == nil {
		return strconv.Itoa(n + 1)
	}
	if part == "" {
		return "1"
	}
	last := part[len(part)-1]
	return part[:len(part)-1] + string(last+1)
}

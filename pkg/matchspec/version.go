package matchspec

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// CompareVersions orders two version strings the way conda does for the
// common cases. Versions split into components on '.', '-' and '_'; each
// component splits further into numeric and alphabetic runs. Numbers
// compare numerically, strings lexically, and a string sorts before a
// number so that "1.1a1" < "1.1". Missing components count as 0, so
// "1.0" == "1.0.0".
func CompareVersions(a, b string) int {
	ca, cb := versionComponents(a), versionComponents(b)
	for i := 0; i < max(len(ca), len(cb)); i++ {
		if c := compareComponent(componentAt(ca, i), componentAt(cb, i)); c != 0 {
			return c
		}
	}
	return 0
}

// fragment is a numeric or alphabetic run of a version component.
type fragment struct {
	num   int
	str   string
	isNum bool
}

var zeroComponent = []fragment{{isNum: true}}

func componentAt(cs [][]fragment, i int) []fragment {
	if i < len(cs) {
		return cs[i]
	}
	return zeroComponent
}

func versionComponents(v string) [][]fragment {
	parts := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(v)), func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	out := make([][]fragment, 0, len(parts))
	for _, p := range parts {
		out = append(out, fragments(p))
	}
	return out
}

func fragments(part string) []fragment {
	var out []fragment
	for len(part) > 0 {
		digit := unicode.IsDigit(rune(part[0]))
		n := 1
		for n < len(part) && unicode.IsDigit(rune(part[n])) == digit {
			n++
		}
		run := part[:n]
		part = part[n:]
		if digit {
			i, err := strconv.Atoi(run)
			if err == nil {
				out = append(out, fragment{num: i, isNum: true})
				continue
			}
		}
		out = append(out, fragment{str: run})
	}
	return out
}

func compareComponent(a, b []fragment) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		fa, fb := zeroComponent[0], zeroComponent[0]
		if i < len(a) {
			fa = a[i]
		}
		if i < len(b) {
			fb = b[i]
		}
		switch {
		case fa.isNum && fb.isNum:
			if fa.num != fb.num {
				return cmpInt(fa.num, fb.num)
			}
		case fa.isNum:
			return 1
		case fb.isNum:
			return -1
		default:
			if c := strings.Compare(fa.str, fb.str); c != 0 {
				return c
			}
		}
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Match reports whether a package with the given version and build
// satisfies m. The version constraint accepts "|" (or) over "," (and)
// joined terms: comparisons (>=1.2, <2, ==1.2, !=1.3, ~=1.2.0), "=1.2"
// and "1.2*" prefixes, and globs. A bare version is a prefix match when
// m has no build and an exact match otherwise. The build is a glob.
func (m MatchSpec) Match(version, build string) bool {
	if m.Build != "" && !globMatch(m.Build, build) {
		return false
	}
	if m.Version == "" {
		return true
	}
	for _, alt := range strings.Split(m.Version, "|") {
		ok := true
		for _, term := range strings.Split(alt, ",") {
			if !matchTerm(strings.TrimSpace(term), version, m.Build == "") {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func matchTerm(term, version string, fuzzy bool) bool {
	for _, op := range []string{">=", "<=", "==", "!=", "~=", ">", "<", "="} {
		rest, ok := strings.CutPrefix(term, op)
		if !ok {
			continue
		}
		rest = strings.TrimSuffix(strings.TrimSuffix(rest, "*"), ".")
		if rest == "" {
			return false
		}
		c := CompareVersions(version, rest)
		switch op {
		case ">=":
			return c >= 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		case "<":
			return c < 0
		case "==":
			return c == 0
		case "!=":
			return c != 0
		case "~=":
			i := strings.LastIndex(rest, ".")
			return c >= 0 && (i < 0 || hasVersionPrefix(version, rest[:i]))
		default:
			return hasVersionPrefix(version, rest)
		}
	}
	switch {
	case term == "" || term == "*":
		return true
	case strings.HasSuffix(term, "*") && !strings.Contains(strings.TrimSuffix(term, "*"), "*"):
		return hasVersionPrefix(version, strings.TrimSuffix(strings.TrimSuffix(term, "*"), "."))
	case strings.Contains(term, "*"):
		return globMatch(term, version)
	case fuzzy:
		return hasVersionPrefix(version, term)
	}
	return CompareVersions(version, term) == 0
}

// hasVersionPrefix reports whether version starts with the components of
// prefix: "1.2.3" has the prefix "1.2" but not "1.20".
func hasVersionPrefix(version, prefix string) bool {
	vc, pc := versionComponents(version), versionComponents(prefix)
	if len(pc) > len(vc) {
		return CompareVersions(version, prefix) == 0
	}
	for i := range pc {
		if compareComponent(vc[i], pc[i]) != 0 {
			return false
		}
	}
	return true
}

func globMatch(pattern, s string) bool {
	re := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	ok, err := regexp.MatchString(re, s)
	return err == nil && ok
}

// Package recipe parses filtered, templated recipe text into a validated
// document tree.
//
// Parsing runs the selector filter, decodes the YAML, enforces the section
// schema, validates enumerated values and finally sanitizes legacy aliases.
// The result is a *tree.Mapping whose sections are guaranteed to have the
// right shape.
package recipe

import (
	"sort"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/selector"
	"github.com/matzehuels/metarender/pkg/tree"
)

// LicenseFamilies are the accepted about/license_family values.
var LicenseFamilies = []string{
	"AGPL", "LGPL", "GPL3", "GPL2", "GPL", "BSD", "MIT", "APACHE", "PSF",
	"CC", "MOZILLA", "PUBLIC-DOMAIN", "PROPRIETARY", "OTHER", "NONE",
}

// Parse turns recipe text into a validated, sanitized document.
//
// The text is run through the selector filter with ns first. path is only
// used in error messages.
func Parse(text string, ns selector.Namespace, path string, logger *log.Logger) (*tree.Mapping, error) {
	filtered, err := selector.Filter(text, ns, logger)
	if err != nil {
		return nil, err
	}
	return ParseFiltered(filtered, path)
}

// ParseFiltered is Parse for text that already went through the selector
// filter. Templated values that end in "[...]" are left alone.
func ParseFiltered(text, path string) (*tree.Mapping, error) {
	doc, err := tree.DecodeMapping([]byte(text))
	if err != nil {
		return nil, err
	}
	if err := coerceSections(doc, path); err != nil {
		return nil, err
	}
	if err := CheckFields(doc); err != nil {
		return nil, err
	}
	if err := checkPinDepends(doc); err != nil {
		return nil, err
	}
	if err := checkLicenseFamily(doc); err != nil {
		return nil, err
	}
	if err := checkNoarch(doc); err != nil {
		return nil, err
	}
	if err := Sanitize(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// coerceSections turns empty known sections into empty mappings and checks
// that every known section is a mapping (source may also be a list of
// mappings, outputs must be a list of mappings).
func coerceSections(doc *tree.Mapping, path string) error {
	for _, field := range sectionOrder {
		v, ok := doc.Get(field)
		if !ok {
			continue
		}
		if tree.IsEmpty(v) {
			doc.Set(field, tree.NewMapping())
			continue
		}
		if field == SectionSource {
			if seq, ok := v.(tree.Sequence); ok {
				for _, item := range seq {
					if _, ok := item.(*tree.Mapping); !ok {
						return errors.New(errors.ErrCodeSchema,
							"The %s field should be a dict or list of dicts, not %s in file %s.", field, v.Kind(), path)
					}
				}
				continue
			}
			if _, ok := v.(*tree.Mapping); !ok {
				return errors.New(errors.ErrCodeSchema,
					"The %s field should be a dict or list of dicts, not %s in file %s.", field, v.Kind(), path)
			}
			continue
		}
		if _, ok := v.(*tree.Mapping); !ok {
			return errors.New(errors.ErrCodeSchema,
				"The %s field should be a dict, not %s in file %s.", field, v.Kind(), path)
		}
	}

	if v, ok := doc.Get(SectionOutputs); ok {
		if tree.IsEmpty(v) {
			doc.Delete(SectionOutputs)
			return nil
		}
		seq, ok := v.(tree.Sequence)
		if !ok {
			return errors.New(errors.ErrCodeSchema,
				"The %s field should be a list, not %s in file %s.", SectionOutputs, v.Kind(), path)
		}
		for i, item := range seq {
			if _, ok := item.(*tree.Mapping); !ok {
				return errors.New(errors.ErrCodeSchema,
					"output %d should be a dict, not %s in file %s.", i, item.Kind(), path)
			}
		}
	}
	return nil
}

func checkPinDepends(doc *tree.Mapping) error {
	switch v := String(doc, "build/pin_depends"); v {
	case "", "record", "strict":
		return nil
	default:
		return errors.New(errors.ErrCodeSchema, "build/pin_depends cannot be '%s'", v)
	}
}

func checkNoarch(doc *tree.Mapping) error {
	v := String(doc, "build/noarch")
	if strings.EqualFold(v, "none") {
		return errors.New(errors.ErrCodeSchema, "Invalid value for noarch: %s", v)
	}
	return nil
}

func checkLicenseFamily(doc *tree.Mapping) error {
	about, ok := doc.Mapping("about")
	if !ok || !about.Has("license_family") {
		return nil
	}
	family := about.String("license_family")
	want := normalizeFamily(family)
	for _, f := range LicenseFamilies {
		if normalizeFamily(f) == want {
			return nil
		}
	}
	allowed := append([]string(nil), LicenseFamilies...)
	sort.Strings(allowed)
	return errors.New(errors.ErrCodeSchema, "about/license_family '%s' not allowed. Allowed families are %s.",
		family, strings.Join(allowed, ", "))
}

// normalizeFamily upper-cases s and drops everything but letters and digits.
func normalizeFamily(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}

package recipe

import (
	"strings"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/tree"
)

// gitRevKeys lists the revision keys of a source entry; the first is canonical.
var gitRevKeys = []string{"git_rev", "git_branch", "git_tag"}

// noneToken marks values left behind by a template variable that rendered
// as nothing.
const noneToken = "None"

// Sanitize normalizes a parsed document in place.
//
// Legacy git_branch and git_tag source keys collapse into git_rev. Then every
// string containing "None" is removed, along with any mapping or sequence
// the removal leaves empty. Sanitize is idempotent.
func Sanitize(doc *tree.Mapping) error {
	if v, ok := doc.Get(SectionSource); ok {
		switch src := v.(type) {
		case *tree.Mapping:
			if err := gitClean(src); err != nil {
				return err
			}
		case tree.Sequence:
			for _, item := range src {
				if m, ok := item.(*tree.Mapping); ok {
					if err := gitClean(m); err != nil {
						return err
					}
				}
			}
		}
	}
	trimNone(doc)
	return nil
}

// gitClean moves git_branch or git_tag into git_rev. At most one of the
// three may be non-empty.
func gitClean(src *tree.Mapping) error {
	var set []string
	for _, k := range gitRevKeys {
		if v, ok := src.Get(k); ok && !tree.IsEmpty(v) {
			set = append(set, k)
		}
	}
	if len(set) > 1 {
		return errors.New(errors.ErrCodeSemantic, "multiple git_revs: %s", strings.Join(set, ", "))
	}
	for _, k := range gitRevKeys[1:] {
		if v, ok := src.Get(k); ok {
			if !tree.IsEmpty(v) {
				src.Set(gitRevKeys[0], v)
			}
			src.Delete(k)
		}
	}
	return nil
}

// trimNone drops "None" strings from m recursively and prunes what empties.
func trimNone(m *tree.Mapping) {
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if nv, keep := trimNoneValue(v); keep {
			m.Set(k, nv)
		} else {
			m.Delete(k)
		}
	}
	tree.TrimEmpty(m)
}

func trimNoneValue(v tree.Value) (tree.Value, bool) {
	switch t := v.(type) {
	case tree.Scalar:
		return t, !strings.Contains(string(t), noneToken)
	case *tree.Mapping:
		trimNone(t)
		return t, true
	case tree.Sequence:
		keep := make(tree.Sequence, 0, len(t))
		for _, item := range t {
			nv, ok := trimNoneValue(item)
			if !ok {
				continue
			}
			if m, isMap := nv.(*tree.Mapping); isMap && m.Len() == 0 {
				continue
			}
			keep = append(keep, nv)
		}
		return keep, true
	default:
		return v, true
	}
}

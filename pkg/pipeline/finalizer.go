package pipeline

import (
	"context"
	"slices"
	"strings"

	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/matchspec"
	"github.com/matzehuels/metarender/pkg/metadata"
)

// Finalizer checks the dependencies of an output against a package index
// during finalization. It returns the metadata to keep, or an
// *errors.UnsatisfiableError naming the packages that cannot be satisfied.
type Finalizer interface {
	Finalize(ctx context.Context, m *metadata.Resolved) (*metadata.Resolved, error)
}

// IndexFinalizer resolves build and host requirements against the
// "available" index of the configuration. A requirement is satisfiable
// when some "version build" entry of its package matches its version and
// build constraints. Requirements naming a sibling output of the recipe
// are always satisfiable. An empty index accepts everything.
type IndexFinalizer struct {
	Config   config.Config
	Siblings map[string]bool
}

// Finalize implements Finalizer.
func (f IndexFinalizer) Finalize(ctx context.Context, m *metadata.Resolved) (*metadata.Resolved, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.Config.Available) == 0 {
		return m, nil
	}
	var missing []string
	for _, phase := range []string{metadata.PhaseBuild, metadata.PhaseHost} {
		for _, ms := range m.Dependencies(phase) {
			if f.Siblings[ms.Name] || ms.Name == m.Name() {
				continue
			}
			if !f.satisfiable(ms) && !slices.Contains(missing, ms.String()) {
				missing = append(missing, ms.String())
			}
		}
	}
	if len(missing) > 0 {
		return nil, &errors.UnsatisfiableError{Packages: missing, Variant: m.Variant().Key()}
	}
	return m, nil
}

func (f IndexFinalizer) satisfiable(ms matchspec.MatchSpec) bool {
	for _, entry := range f.Config.Available[ms.Name] {
		version, build, _ := strings.Cut(strings.TrimSpace(entry), " ")
		if ms.Match(version, strings.TrimSpace(build)) {
			return true
		}
	}
	return false
}

package metadata

import (
	"slices"

	"github.com/matzehuels/metarender/pkg/contenthash"
	"github.com/matzehuels/metarender/pkg/matchspec"
)

// Resolved is the immutable, validated metadata of one rendered output.
//
// Its identity is computed once by [Draft.Resolve]. All accessors return
// copies; there is no way to change a Resolved value.
type Resolved struct {
	view
	name        string
	version     string
	buildNumber int
	hasNumber   bool
	buildString string
	buildID     string
	deps        map[string][]matchspec.MatchSpec
}

func newResolved(v view) (*Resolved, error) {
	r := &Resolved{view: v, deps: make(map[string][]matchspec.MatchSpec)}
	var err error
	if r.name, err = v.name(); err != nil {
		return nil, err
	}
	if r.version, err = v.version(); err != nil {
		return nil, err
	}
	for _, phase := range []string{PhaseBuild, PhaseHost, PhaseRun} {
		if r.deps[phase], err = v.dependencies(phase); err != nil {
			return nil, err
		}
	}
	if r.buildString, err = v.buildString(); err != nil {
		return nil, err
	}
	if r.buildID, err = v.buildID(); err != nil {
		return nil, err
	}
	r.buildNumber, r.hasNumber = v.buildNumber()
	return r, nil
}

// Name returns the package name.
func (r *Resolved) Name() string { return r.name }

// Version returns the package version.
func (r *Resolved) Version() string { return r.version }

// BuildNumber returns build/number and whether it was set to an integer.
func (r *Resolved) BuildNumber() (int, bool) { return r.buildNumber, r.hasNumber }

// Dependencies returns the parsed requirements of a phase (build, host or run).
func (r *Resolved) Dependencies(phase string) []matchspec.MatchSpec {
	return slices.Clone(r.deps[phase])
}

// BuildString returns build/string or the synthesized build string.
func (r *Resolved) BuildString() string { return r.buildString }

// BuildID returns the hash-stamped build identifier.
func (r *Resolved) BuildID() string { return r.buildID }

// Dist returns name-version-build_identifier.
func (r *Resolved) Dist() string { return r.name + "-" + r.version + "-" + r.buildID }

// PkgFilename returns the package archive name.
func (r *Resolved) PkgFilename() string { return r.Dist() + ".tar.bz2" }

// Hash returns the content hash of the output.
func (r *Resolved) Hash() (string, error) { return r.hash() }

// HashInputs returns the exact input of [Resolved.Hash].
func (r *Resolved) HashInputs() (contenthash.HashInputSet, error) { return r.hashInputs() }

// Draft returns a mutable copy. The copy has an empty environment and no
// other outputs.
func (r *Resolved) Draft() *Draft {
	v := r.view.clone()
	v.final = false
	return &Draft{view: v}
}

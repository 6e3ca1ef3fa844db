package outputs

import (
	stderrors "errors"
	"strings"

	"github.com/matzehuels/metarender/pkg/dag"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/matchspec"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/tree"
)

// Graph builds the dependency graph of the conda outputs among entries for
// a phase. Nodes are output names in first-seen order; an edge a→b means a
// requires b in that phase. For the build phase host requirements count as
// well. Each node carries the version and build id of its first entry.
func Graph(entries []metadata.Entry, phase string) *dag.DAG {
	g := dag.New(dag.Metadata{"phase": phase})
	for _, e := range entries {
		if !e.Output.IsConda() {
			continue
		}
		_ = g.AddNode(dag.Node{ID: e.Meta.Name(), Meta: dag.Metadata{
			"version": e.Meta.Version(),
			"build":   e.Meta.BuildID(),
		}})
	}
	for _, e := range entries {
		if !e.Output.IsConda() {
			continue
		}
		from := e.Meta.Name()
		for _, dep := range phaseDeps(e.Meta, phase) {
			if dep == from {
				continue
			}
			if _, ok := g.Node(dep); ok {
				_ = g.AddEdge(dag.Edge{From: from, To: dep})
			}
		}
	}
	return g
}

func phaseDeps(m *metadata.Resolved, phase string) []string {
	specs := m.Dependencies(phase)
	if phase == metadata.PhaseBuild {
		specs = append(specs, m.Dependencies(metadata.PhaseHost)...)
	}
	names := make([]string, len(specs))
	for i, ms := range specs {
		names[i] = ms.Name
	}
	return names
}

// Toposort orders entries so that every conda output follows the outputs
// it requires in phase. Entries sharing a name stay together in their
// original order. Outputs of other types follow at the end, also in their
// original order.
//
// A cycle in the build phase is a CIRCULAR_BUILD_DEPENDENCY error. Run-phase
// cycles are tolerated: the outputs that could not be ordered keep their
// original order after the rest.
func Toposort(entries []metadata.Entry, phase string) ([]metadata.Entry, error) {
	g := Graph(entries, phase)
	order, err := g.TopoSort()
	if stderrors.Is(err, dag.ErrGraphHasCycle) {
		if phase == metadata.PhaseBuild {
			return nil, errors.New(errors.ErrCodeCircularBuildDependency,
				"circular build dependency between outputs: %s", strings.Join(g.FindCycle(), " -> "))
		}
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for _, id := range g.NodeIDs() {
			if !seen[id] {
				order = append(order, id)
			}
		}
	}

	byName := make(map[string][]metadata.Entry, len(order))
	var rest []metadata.Entry
	for _, e := range entries {
		if !e.Output.IsConda() {
			rest = append(rest, e)
			continue
		}
		byName[e.Meta.Name()] = append(byName[e.Meta.Name()], e)
	}
	sorted := make([]metadata.Entry, 0, len(entries))
	for _, name := range order {
		sorted = append(sorted, byName[name]...)
	}
	return append(sorted, rest...), nil
}

// ExactPinCycle rejects outputs that pin a sibling exactly while that
// sibling depends back on them at run time. Such pins feed each other's
// hashes and never settle.
//
// The run graph takes its edges from requirements/run and build/run_exports.
// An edge is exact when the dependency carries both version and build.
func ExactPinCycle(entries []metadata.Entry) error {
	g := dag.New(nil)
	for _, e := range entries {
		if e.Output.IsConda() {
			_ = g.AddNode(dag.Node{ID: e.Meta.Name()})
		}
	}

	type pin struct{ from, to string }
	var exact []pin
	for _, e := range entries {
		if !e.Output.IsConda() {
			continue
		}
		from := e.Meta.Name()
		specs := e.Meta.Dependencies(metadata.PhaseRun)
		for _, s := range runExports(e.Meta) {
			ms, err := matchspec.Parse(s)
			if err != nil {
				return errors.Wrap(errors.ErrCodeSemantic, err, "run_exports of %s", from)
			}
			specs = append(specs, ms)
		}
		for _, ms := range specs {
			if ms.Name == from {
				continue
			}
			if _, ok := g.Node(ms.Name); !ok {
				continue
			}
			_ = g.AddEdge(dag.Edge{From: from, To: ms.Name})
			if ms.IsExact() {
				exact = append(exact, pin{from, ms.Name})
			}
		}
	}

	for _, p := range exact {
		if g.Reachable(p.to, p.from) {
			return errors.New(errors.ErrCodeCircularExactPin,
				"%s pins %s exactly, but %s depends back on %s. %s",
				p.from, p.to, p.to, p.from, metadata.ExactPinLoopMessage)
		}
	}
	return nil
}

// runExports flattens build/run_exports, which is either a list or a
// mapping of lists keyed by strength.
func runExports(m *metadata.Resolved) []string {
	switch v := m.Value("build/run_exports").(type) {
	case *tree.Mapping:
		var out []string
		for _, k := range v.Keys() {
			item, _ := v.Get(k)
			out = append(out, tree.Strings(item)...)
		}
		return out
	default:
		return tree.Strings(v)
	}
}

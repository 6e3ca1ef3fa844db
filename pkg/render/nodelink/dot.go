package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/metarender/pkg/dag"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed includes the row and all metadata in node labels.
	// When false, labels show the output name and version.
	Detailed bool

	// Ranked pins outputs of the same dependency depth to one rank.
	Ranked bool
}

const dotHeader = `digraph G {
  rankdir=TB;
  bgcolor="transparent";
  node [shape=box, style="rounded,filled", fillcolor=white, fontsize=14, margin="0.2,0.1"];
  ranksep=0.5;
  nodesep=0.3;
`

// ToDOT converts an output graph to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG].
//
// Edges of a run-phase graph are drawn dashed; build-phase edges are solid.
// Nodes on a dependency cycle get a red outline.
func ToDOT(g *dag.DAG, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString(dotHeader)
	if phase, ok := g.Meta()["phase"].(string); ok && phase != "" {
		fmt.Fprintf(&buf, "  label=%q;\n", phase+" dependencies")
	}
	buf.WriteString("\n")

	if opts.Ranked {
		g.AssignLayers()
	}
	onCycle := make(map[string]bool)
	for _, id := range g.FindCycle() {
		onCycle[id] = true
	}
	for _, n := range g.Nodes() {
		label := nodeLabel(*n, opts.Detailed)
		attrs := nodeAttrs(label, onCycle[n.ID])
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	if opts.Ranked {
		buf.WriteString("\n")
		for _, row := range g.Rows() {
			if len(row) < 2 {
				continue
			}
			quoted := make([]string, len(row))
			for i, id := range row {
				quoted[i] = strconv.Quote(id)
			}
			fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(quoted, "; "))
		}
	}

	buf.WriteString("\n")
	dashed := g.Meta()["phase"] == "run"
	for _, e := range g.Edges() {
		if dashed {
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed];\n", e.From, e.To)
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeLabel(n dag.Node, detailed bool) string {
	if !detailed {
		if v, ok := n.Meta["version"]; ok && v != "" {
			return fmt.Sprintf("%s\n%v", n.ID, v)
		}
		return n.ID
	}

	parts := []string{fmt.Sprintf("row: %d", n.Row)}
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
	}

	return n.ID + "\n" + strings.Join(parts, "\n")
}

func nodeAttrs(label string, cyclic bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if cyclic {
		attrs = append(attrs, "color=red", "penwidth=2")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the svg tag so the drawing scales with its
// container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}

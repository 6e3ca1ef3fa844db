// Package nodelink renders the dependency graph between the outputs of a
// recipe as a node-link diagram.
//
// # Usage
//
// Build the graph with outputs.Graph, convert it to DOT, then render SVG:
//
//	g := outputs.Graph(results, metadata.PhaseBuild)
//	dot := nodelink.ToDOT(g, nodelink.Options{Ranked: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// The generated DOT uses top-to-bottom layout (rankdir=TB) with rounded box
// nodes. It can also be saved and processed with external Graphviz tools.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering; no Graphviz installation is needed.
package nodelink

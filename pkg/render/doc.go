// Package render holds the renderers of rendered-recipe graphs.
//
// The [nodelink] subpackage draws the dependency graph between the outputs
// of a recipe with Graphviz.
//
// [nodelink]: github.com/matzehuels/metarender/pkg/render/nodelink
package render

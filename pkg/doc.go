// Package pkg provides the core libraries of Metarender, a conda recipe
// renderer.
//
// # Overview
//
// Metarender turns a meta.yaml recipe into the package index records a build
// would produce, once per build variant. The pkg directory is organized into
// three areas:
//
//  1. Recipe evaluation (selectors, templates, the value tree, schema)
//  2. Metadata (variants, outputs, finalization, hashing)
//  3. Infrastructure (caching, channel indexes, serialization, rendering)
//
// # Architecture
//
// The data flow of one render:
//
//	meta.yaml + config + variant
//	         ↓
//	    [selector] drop lines whose "# [expr]" is false
//	         ↓
//	    [template] expand {{ ... }} against the [namespace]
//	         ↓
//	    [recipe] decode into a [tree] and validate the schema
//	         ↓
//	    [outputs] expand outputs, order them by build dependencies
//	         ↓
//	    [metadata] finalize pins and stamp the [contenthash]
//	         ↓
//	    index.json records ([io])
//
// [pipeline] runs these stages for every variant and caches the result.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/matzehuels/metarender/pkg/config"
//	    "github.com/matzehuels/metarender/pkg/namespace"
//	    "github.com/matzehuels/metarender/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	records, _, err := runner.RenderRecords(context.Background(), pipeline.Options{
//	    Recipe: "recipes/zlib",
//	    Config: config.Default(),
//	    Env:    namespace.EnvFromOS(),
//	})
//
// # Main Packages
//
// [selector] - The closed selector expression grammar and the line filter.
//
// [namespace] - The per-variant names selectors and templates see.
//
// [template] - HCL string templates with the recipe helper functions
// (compiler, pin_subpackage, pin_compatible, ...).
//
// [tree] and [recipe] - The tagged value tree and the recipe schema.
//
// [matchspec] - Dependency tokens such as "zlib >=1.2 h1234_0".
//
// [metadata] - Draft and immutable Resolved metadata of one output.
//
// [outputs] - Output expansion and the build and run dependency graphs.
//
// [cache] - File, Redis, MongoDB and null cache backends.
//
// [channel] - Channel repodata that extends the available packages.
//
// [render/nodelink] - Graphviz drawings of the output graph.
//
// [selector]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/selector
// [namespace]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/namespace
// [template]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/template
// [tree]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/tree
// [recipe]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/recipe
// [matchspec]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/matchspec
// [metadata]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/metadata
// [contenthash]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/contenthash
// [outputs]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/outputs
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/pipeline
// [io]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/io
// [cache]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/cache
// [channel]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/channel
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/metarender/pkg/render/nodelink
package pkg

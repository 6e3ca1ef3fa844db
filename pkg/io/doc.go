// Package io reads and writes rendered recipe data.
//
// # Info Records
//
// Rendered outputs are exchanged as an index.jsonl file: one JSON info
// record per line, in render order.
//
//	{"name":"libfoo","version":"1.2.3","build":"h1a2b3c4_0","build_number":0,...}
//	{"name":"foo","version":"1.2.3","build":"py36h5d6e7f8_0","build_number":0,...}
//
// Use [ExportRecords] and [ImportRecords] for files, or [WriteRecords] and
// [ReadRecords] for any stream. [NewRepodata] groups records into the
// per-subdir channel index keyed by package filename.
//
// # Output Graphs
//
// [WriteGraph] and [ReadGraph] exchange the dependency graph between the
// outputs of a recipe as JSON:
//
//	{
//	  "meta": {"phase": "build"},
//	  "nodes": [{"id": "foo", "meta": {"version": "1.2.3"}}, {"id": "libfoo"}],
//	  "edges": [{"from": "foo", "to": "libfoo"}]
//	}
//
// Edges point from a dependent output to its dependency.
package io

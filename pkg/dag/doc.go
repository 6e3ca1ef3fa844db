// Package dag provides a small directed graph that keeps insertion order.
//
// # Overview
//
// A recipe with several outputs forms a dependency graph: an edge runs from
// an output to each sibling output it needs. The renderer builds outputs in
// dependency order and refuses graphs whose build requirements loop back on
// themselves. This package holds that graph.
//
// # Basic Usage
//
// Create a graph with [New], add nodes with [DAG.AddNode] and edges with
// [DAG.AddEdge]. Edges point from a dependent to its dependency:
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "app"})
//	g.AddNode(dag.Node{ID: "lib"})
//	g.AddEdge(dag.Edge{From: "app", To: "lib"})
//
// # Ordering
//
// [DAG.TopoSort] returns dependencies before dependents. Nodes that become
// ready together keep their insertion order, which makes the result stable
// across runs. [DAG.FindCycle] names a cycle when there is one, and
// [DAG.Reachable] answers path queries.
//
// [DAG.AssignLayers] computes rows for drawing the graph.
//
// # Concurrency
//
// DAG instances are not safe for concurrent use.
package dag

package dag

import "slices"

// TopoSort orders the nodes so that every node comes after all of its
// dependencies. Among nodes that are ready at the same time the one
// inserted first wins.
//
// TopoSort uses Kahn's algorithm over out-degrees. If the graph has a cycle
// it returns the nodes it could order together with ErrGraphHasCycle.
func (d *DAG) TopoSort() ([]string, error) {
	pos := make(map[string]int, len(d.order))
	for i, id := range d.order {
		pos[id] = i
	}
	pending := make(map[string]int, len(d.order))
	var ready []string
	for _, id := range d.order {
		pending[id] = len(d.outgoing[id])
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]string, 0, len(d.order))
	for len(ready) > 0 {
		curr := ready[0]
		ready = ready[1:]
		sorted = append(sorted, curr)

		for _, parent := range d.incoming[curr] {
			pending[parent]--
			if pending[parent] == 0 {
				i, _ := slices.BinarySearchFunc(ready, parent, func(a, b string) int { return pos[a] - pos[b] })
				ready = slices.Insert(ready, i, parent)
			}
		}
	}
	if len(sorted) != len(d.order) {
		return sorted, ErrGraphHasCycle
	}
	return sorted, nil
}

// FindCycle returns the first directed cycle found by a depth-first search
// in insertion order, as a path whose first and last elements are equal.
// It returns nil for an acyclic graph.
func (d *DAG) FindCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(d.order))
	var stack, cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range d.outgoing[id] {
			switch color[child] {
			case white:
				if dfs(child) {
					return true
				}
			case gray:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range d.order {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// Reachable reports whether to can be reached from from along one or more
// edges.
func (d *DAG) Reachable(from, to string) bool {
	seen := map[string]bool{from: true}
	queue := slices.Clone(d.outgoing[from])
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if curr == to {
			return true
		}
		if seen[curr] {
			continue
		}
		seen[curr] = true
		queue = append(queue, d.outgoing[curr]...)
	}
	return false
}

// AssignLayers places every node one row below its deepest dependent, so
// sources sit at row 0. It assumes the graph is acyclic; nodes on a cycle
// keep row 0.
func (d *DAG) AssignLayers() {
	inDegree := make(map[string]int, len(d.order))
	rows := make(map[string]int, len(d.order))
	queue := make([]string, 0, len(d.order))

	for _, id := range d.order {
		inDegree[id] = len(d.incoming[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, child := range d.outgoing[curr] {
			if row := rows[curr] + 1; row > rows[child] {
				rows[child] = row
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	for id, n := range d.nodes {
		n.Row = rows[id]
	}
}

// Rows groups node IDs by row, top to bottom, in insertion order.
func (d *DAG) Rows() [][]string {
	var out [][]string
	for _, id := range d.order {
		row := d.nodes[id].Row
		for len(out) <= row {
			out = append(out, nil)
		}
		out[row] = append(out[row], id)
	}
	return out
}

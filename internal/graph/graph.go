package graph

// Build constructs a TaskGraph from known task ids and a candidate edge list.
//
// Edges whose endpoints are not both known ids are dropped without error:
// a task may have been deleted after the edge list was read but before the
// schedule is recomputed. Duplicate ids and duplicate edges collapse.
func Build(ids []string, edges []Edge) *TaskGraph {
	g := &TaskGraph{
		Nodes:  make([]string, 0, len(ids)),
		Adj:    make(map[string][]string, len(ids)),
		RevAdj: make(map[string][]string, len(ids)),
		index:  make(map[string]struct{}, len(ids)),
	}

	for _, id := range ids {
		if _, ok := g.index[id]; ok {
			continue
		}
		g.index[id] = struct{}{}
		g.Nodes = append(g.Nodes, id)
		g.Adj[id] = nil
		g.RevAdj[id] = nil
	}

	seen := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		if !g.Has(e.DependencyID) || !g.Has(e.DependentID) {
			continue
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.Adj[e.DependencyID] = append(g.Adj[e.DependencyID], e.DependentID)
		g.RevAdj[e.DependentID] = append(g.RevAdj[e.DependentID], e.DependencyID)
	}

	for _, id := range g.Nodes {
		if len(g.RevAdj[id]) == 0 {
			g.Roots = append(g.Roots, id)
		}
		if len(g.Adj[id]) == 0 {
			g.Leaves = append(g.Leaves, id)
		}
	}

	return g
}

// FromTasks is Build over the ids of tasks, in slice order.
func FromTasks(tasks []Task, edges []Edge) *TaskGraph {
	return Build(IDs(tasks), edges)
}

// IDs returns the ids of tasks in slice order.
func IDs(tasks []Task) []string {
	ids := make([]string, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	return ids
}

// Has reports whether id is a node of the graph.
func (g *TaskGraph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// TaskCount returns the number of tasks in the graph.
func (g *TaskGraph) TaskCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of distinct edges kept by Build.
func (g *TaskGraph) EdgeCount() int {
	n := 0
	for _, succ := range g.Adj {
		n += len(succ)
	}
	return n
}

// DetectCycle returns one cycle path if one exists, or nil if the graph is acyclic.
// The path starts and ends on the same node. Uses DFS with coloring:
// white (unvisited), gray (in progress), black (done).
func (g *TaskGraph) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string, len(g.Nodes))

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, next := range g.Adj[node] {
			if color[next] == gray {
				// Walk parents back from node to next, then reverse.
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, id := range g.Nodes {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

package cpm

import (
	"github.com/joshharrison/critpath/internal/graph"
)

// TopoSort orders the graph with Kahn's algorithm.
//
// The ready queue is seeded in g.Nodes order and dependents are enqueued in
// adjacency order, so the result is stable for a given input. If fewer than
// all nodes can be ordered it returns a *CycleError instead of a partial order.
func TopoSort(g *graph.TaskGraph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	var queue []string
	for _, id := range g.Nodes {
		inDegree[id] = len(g.RevAdj[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for head := 0; head < len(queue); head++ {
		node := queue[head]
		order = append(order, node)

		for _, succ := range g.Adj[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, &CycleError{
			Sorted: len(order),
			Total:  len(g.Nodes),
			Path:   g.DetectCycle(),
		}
	}
	return order, nil
}

// Order returns a topological order of tasks under edges.
func Order(tasks []graph.Task, edges []graph.Edge) ([]string, error) {
	return TopoSort(graph.FromTasks(tasks, edges))
}

// WouldCreateCycle reports whether committing proposed on top of committed
// would leave the task set without a topological order. Neither slice is
// modified. A self-edge on a known id always reports true.
func WouldCreateCycle(ids []string, committed, proposed []graph.Edge) bool {
	all := make([]graph.Edge, 0, len(committed)+len(proposed))
	all = append(all, committed...)
	all = append(all, proposed...)

	_, err := TopoSort(graph.Build(ids, all))
	return err != nil
}

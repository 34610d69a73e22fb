package cpm

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/critpath/internal/graph"
)

func TestOrder_StandardProject(t *testing.T) {
	tasks, edges := standardProject()

	order, err := Order(tasks, edges)
	require.NoError(t, err)

	// Seeded in insertion order, dependents in adjacency order.
	if diff := cmp.Diff([]string{"A", "B", "C", "D", "E"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestOrder_Deterministic(t *testing.T) {
	tasks := []graph.Task{task("q", 1), task("w", 1), task("e", 1), task("r", 1)}
	edges := []graph.Edge{edge("e", "q")}

	first, err := Order(tasks, edges)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Order(tasks, edges)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Equal(t, []string{"w", "e", "r", "q"}, first)
}

func TestOrder_CycleFailsWithoutPartialOrder(t *testing.T) {
	tasks := []graph.Task{task("root", 1), task("a", 1), task("b", 1), task("c", 1)}
	edges := []graph.Edge{edge("root", "a"), edge("a", "b"), edge("b", "c"), edge("c", "a")}

	order, err := Order(tasks, edges)
	assert.Nil(t, order)
	require.ErrorIs(t, err, ErrCycleDetected)

	var cerr *CycleError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 1, cerr.Sorted)
	assert.Equal(t, 4, cerr.Total)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cerr.Path)
	assert.Contains(t, err.Error(), "1 of 4 tasks sorted")
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestOrder_RespectsEveryEdge(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		tasks, edges := randomDAG(rng, 2+rng.Intn(25))

		order, err := Order(tasks, edges)
		require.NoError(t, err)
		require.Len(t, order, len(tasks))

		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		require.Len(t, pos, len(tasks), "order must be a permutation")
		for _, e := range edges {
			assert.Less(t, pos[e.DependencyID], pos[e.DependentID], "edge %v out of order", e)
		}
	}
}

func TestWouldCreateCycle(t *testing.T) {
	tasks, edges := standardProject()
	ids := graph.IDs(tasks)

	tests := []struct {
		name     string
		proposed []graph.Edge
		want     bool
	}{
		{"back edge D->A", []graph.Edge{edge("D", "A")}, true},
		{"back edge E->B", []graph.Edge{edge("E", "B")}, true},
		{"self edge", []graph.Edge{edge("C", "C")}, true},
		{"forward shortcut A->E", []graph.Edge{edge("A", "E")}, false},
		{"sibling C->B", []graph.Edge{edge("C", "B")}, false},
		{"duplicate of committed", []graph.Edge{edge("A", "B")}, false},
		{"unknown endpoint", []graph.Edge{edge("E", "ghost"), edge("ghost", "A")}, false},
		{"nothing proposed", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WouldCreateCycle(ids, edges, tt.proposed))
		})
	}
}

func TestWouldCreateCycle_DoesNotMutateInputs(t *testing.T) {
	tasks, edges := standardProject()
	ids := graph.IDs(tasks)

	// Spare capacity would let a careless append write into committed's array.
	committed := make([]graph.Edge, len(edges), len(edges)+4)
	copy(committed, edges)
	proposed := []graph.Edge{edge("D", "A")}

	idsBefore := append([]string(nil), ids...)
	committedBefore := append([]graph.Edge(nil), committed...)
	proposedBefore := append([]graph.Edge(nil), proposed...)

	require.True(t, WouldCreateCycle(ids, committed, proposed))
	require.False(t, WouldCreateCycle(ids, committed, []graph.Edge{edge("A", "E")}))

	assert.Equal(t, idsBefore, ids)
	assert.Equal(t, committedBefore, committed)
	assert.Equal(t, proposedBefore, proposed)
	for _, spare := range committed[len(committed):cap(committed)] {
		assert.Zero(t, spare, "spare capacity of committed was written")
	}
}

func TestWouldCreateCycle_RandomBackEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 30; trial++ {
		tasks, edges := randomDAG(rng, 3+rng.Intn(15))
		if len(edges) == 0 {
			continue
		}
		ids := graph.IDs(tasks)
		e := edges[rng.Intn(len(edges))]

		// Reversing any committed edge closes a two-node cycle.
		assert.True(t, WouldCreateCycle(ids, edges, []graph.Edge{edge(e.DependentID, e.DependencyID)}))
		assert.False(t, WouldCreateCycle(ids, edges, nil))
	}
}

func TestAnalyze_CriticalPathIsLongestPath(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 40; trial++ {
		tasks, edges := randomDAG(rng, 2+rng.Intn(20))
		for i := range tasks {
			tasks[i].DurationDays = 1 + rng.Intn(6)
		}

		result, err := Analyze(tasks, edges)
		require.NoError(t, err)

		path, length := longestPath(result)
		assert.Equal(t, result.TotalDuration, length)
		for _, id := range path {
			assert.True(t, result.Tasks[id].IsCritical, "trial %d: %s lies on a longest path", trial, id)
		}
		for id, ts := range result.Tasks {
			assert.GreaterOrEqual(t, ts.Slack, 0, "negative slack on %s", id)
			assert.Equal(t, ts.LF-ts.EF, ts.Slack, "slack mismatch on %s", id)
		}
	}
}

// randomDAG returns n tasks in shuffled order with edges only from lower to
// higher rank, so the result is always acyclic.
func randomDAG(rng *rand.Rand, n int) ([]graph.Task, []graph.Edge) {
	tasks := make([]graph.Task, n)
	for i := range tasks {
		tasks[i] = task(fmt.Sprintf("t%02d", i), 1)
	}
	var edges []graph.Edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < 0.25 {
				edges = append(edges, edge(tasks[i].ID, tasks[j].ID))
			}
		}
	}
	rng.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	return tasks, edges
}

// longestPath finds one maximum-duration path from a root to a leaf.
func longestPath(result *CPMResult) ([]string, int) {
	g := result.Graph
	best := make(map[string]int)
	prev := make(map[string]string)
	for _, id := range result.TopoOrder {
		start := 0
		for _, p := range g.RevAdj[id] {
			if best[p] > start {
				start = best[p]
				prev[id] = p
			}
		}
		best[id] = start + result.Tasks[id].Duration
	}

	end, length := "", -1
	for _, id := range result.TopoOrder {
		if best[id] > length {
			end, length = id, best[id]
		}
	}
	if end == "" {
		return nil, 0
	}

	var path []string
	for cur := end; cur != ""; cur = prev[cur] {
		path = append(path, cur)
	}
	return path, length
}

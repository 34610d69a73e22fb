package cpm

import (
	"sort"

	"github.com/joshharrison/critpath/internal/graph"
)

// Analyze performs critical path method analysis over tasks and edges.
// Each task's duration is its EffectiveDuration (at least one day). Edges
// that reference unknown tasks are ignored.
func Analyze(tasks []graph.Task, edges []graph.Edge) (*CPMResult, error) {
	g := graph.FromTasks(tasks, edges)

	durations := make(map[string]int, len(tasks))
	for i := range tasks {
		durations[tasks[i].ID] = tasks[i].EffectiveDuration()
	}

	return analyzeGraph(g, durations)
}

func analyzeGraph(g *graph.TaskGraph, durations map[string]int) (*CPMResult, error) {
	order, err := TopoSort(g)
	if err != nil {
		return nil, err
	}

	result := &CPMResult{
		Tasks:     make(map[string]*TaskSchedule, len(order)),
		TopoOrder: order,
		Graph:     g,
	}

	for _, id := range order {
		result.Tasks[id] = &TaskSchedule{TaskID: id, Duration: durations[id]}
	}

	// Forward pass: ES = max(EF of dependencies)
	for _, id := range order {
		ts := result.Tasks[id]
		es := 0
		for _, pred := range g.RevAdj[id] {
			if ef := result.Tasks[pred].EF; ef > es {
				es = ef
			}
		}
		ts.ES = es
		ts.EF = es + ts.Duration
	}

	horizon := 0
	for _, ts := range result.Tasks {
		if ts.EF > horizon {
			horizon = ts.EF
		}
	}
	result.TotalDuration = horizon

	// Backward pass: LF = min(LS of dependents), or the horizon for leaves
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		ts := result.Tasks[id]

		lf := horizon
		if succs := g.Adj[id]; len(succs) > 0 {
			lf = result.Tasks[succs[0]].LS
			for _, succ := range succs[1:] {
				if ls := result.Tasks[succ].LS; ls < lf {
					lf = ls
				}
			}
		}
		ts.LF = lf
		ts.LS = lf - ts.Duration
		ts.Slack = ts.LS - ts.ES
		ts.IsCritical = ts.Slack == 0
	}

	for _, id := range order {
		if result.Tasks[id].IsCritical {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}

	result.Waves = computeWaves(result)

	return result, nil
}

// computeWaves groups tasks by their earliest start time. Within a wave,
// critical tasks come first, then topological order.
func computeWaves(result *CPMResult) []Wave {
	esGroups := make(map[int][]string)
	for _, id := range result.TopoOrder {
		es := result.Tasks[id].ES
		esGroups[es] = append(esGroups[es], id)
	}

	esValues := make([]int, 0, len(esGroups))
	for es := range esGroups {
		esValues = append(esValues, es)
	}
	sort.Ints(esValues)

	waves := make([]Wave, len(esValues))
	for i, es := range esValues {
		taskIDs := esGroups[es]

		hasCritical := false
		for _, id := range taskIDs {
			result.Tasks[id].Wave = i
			if result.Tasks[id].IsCritical {
				hasCritical = true
			}
		}

		sort.SliceStable(taskIDs, func(a, b int) bool {
			return result.Tasks[taskIDs[a]].IsCritical && !result.Tasks[taskIDs[b]].IsCritical
		})

		waves[i] = Wave{
			Index:      i,
			Start:      es,
			TaskIDs:    taskIDs,
			IsCritical: hasCritical,
		}
	}

	return waves
}

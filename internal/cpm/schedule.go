package cpm

import (
	"time"

	"github.com/joshharrison/critpath/internal/graph"
)

// now is swapped in tests.
var now = time.Now

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days, keeping wall-clock time across DST.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// Recompute runs a full CPM pass and returns calendar dates for every task,
// counted from the start of today. On a cycle it returns a nil map and an
// error wrapping ErrCycleDetected; nothing is partially computed.
func Recompute(tasks []graph.Task, edges []graph.Edge) (map[string]Schedule, error) {
	return RecomputeAt(tasks, edges, now())
}

// RecomputeAt is Recompute with an explicit reference instant. All dates in
// one call share StartOfDay(ref).
func RecomputeAt(tasks []graph.Task, edges []graph.Edge, ref time.Time) (map[string]Schedule, error) {
	day0 := StartOfDay(ref)

	result, err := Analyze(tasks, edges)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Schedule, len(result.Tasks))
	for id, ts := range result.Tasks {
		out[id] = Schedule{
			EarliestStart:  AddDays(day0, ts.ES),
			EarliestFinish: AddDays(day0, ts.EF),
			LatestStart:    AddDays(day0, ts.LS),
			LatestFinish:   AddDays(day0, ts.LF),
			CriticalPath:   ts.IsCritical,
			Slack:          ts.Slack,
		}
	}
	return out, nil
}

// Apply replaces the derived fields of every task found in sched.
// Tasks missing from sched are invalidated.
func Apply(tasks []graph.Task, sched map[string]Schedule) {
	for i := range tasks {
		s, ok := sched[tasks[i].ID]
		if !ok {
			invalidate(&tasks[i])
			continue
		}
		es, ef, ls, lf := s.EarliestStart, s.EarliestFinish, s.LatestStart, s.LatestFinish
		tasks[i].EarliestStart = &es
		tasks[i].EarliestFinish = &ef
		tasks[i].LatestStart = &ls
		tasks[i].LatestFinish = &lf
		tasks[i].CriticalPath = s.CriticalPath
	}
}

// Invalidate clears the derived fields of every task.
func Invalidate(tasks []graph.Task) {
	for i := range tasks {
		invalidate(&tasks[i])
	}
}

func invalidate(t *graph.Task) {
	t.EarliestStart = nil
	t.EarliestFinish = nil
	t.LatestStart = nil
	t.LatestFinish = nil
	t.CriticalPath = false
}

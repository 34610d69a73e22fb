package graph

import "time"

// Task is a single schedulable unit of work.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	DurationDays int        `json:"durationDays"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`

	// Derived by cpm.Apply. Nil until the first successful recompute and
	// cleared again whenever a recompute fails.
	EarliestStart  *time.Time `json:"earliestStart,omitempty"`
	EarliestFinish *time.Time `json:"earliestFinish,omitempty"`
	LatestStart    *time.Time `json:"latestStart,omitempty"`
	LatestFinish   *time.Time `json:"latestFinish,omitempty"`
	CriticalPath   bool       `json:"criticalPath"`
}

// EffectiveDuration is the scheduled length of the task in days (never below 1).
func (t *Task) EffectiveDuration() int {
	if t.DurationDays < 1 {
		return 1
	}
	return t.DurationDays
}

// Edge means DependentID cannot start before DependencyID finishes.
type Edge struct {
	DependencyID string `json:"dependencyId"`
	DependentID  string `json:"dependentId"`
}

// TaskGraph is the adjacency view of a task set, rebuilt for every analysis.
type TaskGraph struct {
	Nodes  []string            // task ids in insertion order
	Adj    map[string][]string // dependency -> dependents
	RevAdj map[string][]string // dependent -> dependencies
	Roots  []string            // tasks with no dependencies
	Leaves []string            // tasks nothing depends on

	index map[string]struct{}
}

package cpm

import (
	"time"

	"github.com/joshharrison/critpath/internal/graph"
)

// CPMResult holds the complete critical path analysis in day offsets.
type CPMResult struct {
	Tasks         map[string]*TaskSchedule
	CriticalPath  []string // critical task ids in topological order
	TotalDuration int      // project horizon: max EF
	Waves         []Wave   // tasks grouped by earliest start
	TopoOrder     []string
	Graph         *graph.TaskGraph
}

// TaskSchedule holds the scheduling info for a single task, in days from
// the reference date.
type TaskSchedule struct {
	TaskID     string
	Duration   int
	ES, EF     int // earliest start/finish
	LS, LF     int // latest start/finish
	Slack      int
	IsCritical bool
	Wave       int
}

// Wave is a group of tasks sharing the same earliest start.
type Wave struct {
	Index      int      `json:"index"`
	Start      int      `json:"start"`
	TaskIDs    []string `json:"taskIds"`
	IsCritical bool     `json:"isCritical"` // true if wave contains critical path tasks
}

// Schedule is the calendar form of a TaskSchedule, written back onto tasks.
type Schedule struct {
	EarliestStart  time.Time `json:"earliestStart"`
	EarliestFinish time.Time `json:"earliestFinish"`
	LatestStart    time.Time `json:"latestStart"`
	LatestFinish   time.Time `json:"latestFinish"`
	CriticalPath   bool      `json:"criticalPath"`
	Slack          int       `json:"slack"`
}

package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/ui"
)

const dateLayout = "2006-01-02"

// Reporter renders a task set and its schedule for the terminal, for
// machines and for Graphviz.
type Reporter struct {
	Tasks  []graph.Task
	Edges  []graph.Edge
	Result *cpm.CPMResult
	Today  time.Time

	byID map[string]*graph.Task
}

// New analyzes tasks and edges. It fails only when the edges contain a cycle.
func New(tasks []graph.Task, edges []graph.Edge, now time.Time) (*Reporter, error) {
	result, err := cpm.Analyze(tasks, edges)
	if err != nil {
		return nil, err
	}

	r := &Reporter{
		Tasks:  tasks,
		Edges:  edges,
		Result: result,
		Today:  cpm.StartOfDay(now),
		byID:   make(map[string]*graph.Task, len(tasks)),
	}
	for i := range tasks {
		r.byID[tasks[i].ID] = &r.Tasks[i]
	}
	return r, nil
}

// Status classifies a task for display: unscheduled, late (finishes after
// its due date), overdue (due date already passed), critical or ok.
func (r *Reporter) Status(t *graph.Task) string {
	switch {
	case t.EarliestFinish == nil:
		return "unscheduled"
	case t.DueDate != nil && t.EarliestFinish.After(*t.DueDate):
		return "late"
	case t.DueDate != nil && t.DueDate.Before(r.Today):
		return "overdue"
	case t.CriticalPath:
		return "critical"
	default:
		return "ok"
	}
}

// DueLabel describes the due date relative to today.
func (r *Reporter) DueLabel(t *graph.Task) string {
	if t.DueDate == nil {
		return "no due date"
	}
	days := daysBetween(r.Today, cpm.StartOfDay(*t.DueDate))
	switch {
	case days < 0:
		return fmt.Sprintf("overdue by %dd", -days)
	case days == 0:
		return "due today"
	default:
		return fmt.Sprintf("due in %dd", days)
	}
}

// PrintSummary writes one line per task in creation order, with its dates
// and the titles of its dependencies.
func (r *Reporter) PrintSummary(w io.Writer, header string) {
	fmt.Fprintf(w, "\n%s\n", ui.BoldCyan("=== "+header+" ==="))
	for i := range r.Tasks {
		t := &r.Tasks[i]
		labels := []string{
			"Earliest start " + formatDate(t.EarliestStart),
			"Earliest finish " + formatDate(t.EarliestFinish),
			"Due " + formatDate(t.DueDate),
		}
		if t.CriticalPath {
			labels = append(labels, ui.BoldYellow("CRITICAL"))
		}
		deps := r.dependencyTitles(t.ID)
		if deps == "" {
			deps = "None"
		}
		fmt.Fprintf(w, "- %s [effort %dd] | %s | depends on: %s\n",
			t.Title, t.DurationDays, strings.Join(labels, " | "), deps)
	}
}

// PrintSchedule writes a table of every task with its CPM dates and slack.
func (r *Reporter) PrintSchedule(w io.Writer) {
	fmt.Fprintf(w, "🎯 %s\n", ui.BoldCyan("Project Schedule"))
	fmt.Fprintln(w, ui.Cyan("════════════════"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tasks:     %s, %s dependencies\n", ui.Bold(len(r.Tasks)), ui.Bold(r.Result.Graph.EdgeCount()))
	fmt.Fprintf(w, "Horizon:   %s days\n", ui.Bold(r.Result.TotalDuration))
	if len(r.Result.CriticalPath) > 0 {
		fmt.Fprintf(w, "⚡ Critical path: %s\n", ui.BoldYellow(strings.Join(r.titles(r.Result.CriticalPath), " → ")))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "    %-32s %6s  %-10s  %-10s  %-10s  %-10s  %5s  %s\n",
		"TITLE", "EFFORT", "ES", "EF", "LS", "LF", "SLACK", "DUE")
	for _, id := range r.Result.TopoOrder {
		r.printRow(w, r.byID[id])
	}
}

func (r *Reporter) printRow(w io.Writer, t *graph.Task) {
	slack := "-"
	if ts, ok := r.Result.Tasks[t.ID]; ok {
		slack = fmt.Sprintf("%d", ts.Slack)
	}

	due := r.DueLabel(t)
	switch r.Status(t) {
	case "late":
		due = ui.Red(due + " (late)")
	case "overdue":
		due = ui.BoldRed(due)
	}

	fmt.Fprintf(w, "  %s %-32s %5dd  %-10s  %-10s  %-10s  %-10s  %5s  %s\n",
		ui.StatusIcon(r.Status(t)), truncate(t.Title, 32), t.EffectiveDuration(),
		formatDate(t.EarliestStart), formatDate(t.EarliestFinish),
		formatDate(t.LatestStart), formatDate(t.LatestFinish),
		slack, due)
}

// PrintASCII writes the schedule grouped into waves of tasks that share an
// earliest start, with each task's dependents underneath.
func (r *Reporter) PrintASCII(w io.Writer) {
	fmt.Fprintf(w, "🔗 %s\n", ui.BoldCyan("Task Dependency Graph"))
	fmt.Fprintln(w, ui.Cyan("═══════════════════════"))
	fmt.Fprintln(w)

	for _, wave := range r.Result.Waves {
		status := "slack"
		if wave.IsCritical {
			status = "critical"
		}
		fmt.Fprintf(w, "%s 🌊 Wave %d, day %d (%s) %s\n",
			ui.Cyan("──"), wave.Index+1, wave.Start, ui.WaveStatus(status), ui.Cyan("──────────────────"))
		for _, id := range wave.TaskIDs {
			ts := r.Result.Tasks[id]
			crit := " "
			if ts.IsCritical {
				crit = ui.BoldYellow("⚡")
			}
			fmt.Fprintf(w, "  %s %s %s\n", crit, r.byID[id].Title,
				ui.Dim(fmt.Sprintf("(%dd, slack %d)", ts.Duration, ts.Slack)))

			for _, next := range r.Result.Graph.Adj[id] {
				fmt.Fprintf(w, "      %s %s\n", ui.Dim("└──→"), ui.Magenta(r.byID[next].Title))
			}
		}
		fmt.Fprintln(w)
	}
}

// PrintDOT writes a Graphviz digraph. Critical tasks, and edges between two
// critical tasks, are drawn in red.
func (r *Reporter) PrintDOT(w io.Writer) {
	fmt.Fprintln(w, "digraph critpath {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=rounded];")
	fmt.Fprintln(w)

	for _, id := range r.Result.Graph.Nodes {
		ts := r.Result.Tasks[id]
		label := fmt.Sprintf("%s\\n%dd, slack %d", escapeDOT(r.byID[id].Title), ts.Duration, ts.Slack)
		attrs := fmt.Sprintf(`label="%s"`, label)
		if ts.IsCritical {
			attrs += `, style="rounded,bold", color=red`
		}
		fmt.Fprintf(w, "  %q [%s];\n", id, attrs)
	}

	fmt.Fprintln(w)

	for _, from := range r.Result.Graph.Nodes {
		for _, to := range r.Result.Graph.Adj[from] {
			style := ""
			if r.Result.Tasks[from].IsCritical && r.Result.Tasks[to].IsCritical {
				style = ` [color=red, penwidth=2]`
			}
			fmt.Fprintf(w, "  %q -> %q%s;\n", from, to, style)
		}
	}

	fmt.Fprintln(w, "}")
}

// ScheduledTask is the machine-readable form of one task.
type ScheduledTask struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	DurationDays   int        `json:"durationDays"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	EarliestStart  *time.Time `json:"earliestStart"`
	EarliestFinish *time.Time `json:"earliestFinish"`
	LatestStart    *time.Time `json:"latestStart"`
	LatestFinish   *time.Time `json:"latestFinish"`
	Slack          int        `json:"slack"`
	CriticalPath   bool       `json:"criticalPath"`
	Wave           int        `json:"wave"`
	Status         string     `json:"status"`
	DependsOn      []string   `json:"dependsOn"`
}

// ScheduleReport is the machine-readable schedule.
type ScheduleReport struct {
	TotalDays    int             `json:"totalDays"`
	CriticalPath []string        `json:"criticalPath"`
	Order        []string        `json:"order"`
	Waves        []cpm.Wave      `json:"waves"`
	Tasks        []ScheduledTask `json:"tasks"`
}

// Summary builds the machine-readable schedule, tasks in topological order.
func (r *Reporter) Summary() ScheduleReport {
	s := ScheduleReport{
		TotalDays:    r.Result.TotalDuration,
		CriticalPath: nonNil(r.Result.CriticalPath),
		Order:        nonNil(r.Result.TopoOrder),
		Waves:        r.Result.Waves,
		Tasks:        make([]ScheduledTask, 0, len(r.Tasks)),
	}
	if s.Waves == nil {
		s.Waves = []cpm.Wave{}
	}

	for _, id := range r.Result.TopoOrder {
		t := r.byID[id]
		ts := r.Result.Tasks[id]
		s.Tasks = append(s.Tasks, ScheduledTask{
			ID:             t.ID,
			Title:          t.Title,
			DurationDays:   t.DurationDays,
			DueDate:        t.DueDate,
			EarliestStart:  t.EarliestStart,
			EarliestFinish: t.EarliestFinish,
			LatestStart:    t.LatestStart,
			LatestFinish:   t.LatestFinish,
			Slack:          ts.Slack,
			CriticalPath:   ts.IsCritical,
			Wave:           ts.Wave,
			Status:         r.Status(t),
			DependsOn:      nonNil(r.Result.Graph.RevAdj[id]),
		})
	}
	return s
}

// JSON returns the machine-readable schedule.
func (r *Reporter) JSON() ([]byte, error) {
	return json.MarshalIndent(r.Summary(), "", "  ")
}

func (r *Reporter) dependencyTitles(id string) string {
	return strings.Join(r.titles(r.Result.Graph.RevAdj[id]), ", ")
}

func (r *Reporter) titles(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.byID[id]; ok {
			out = append(out, t.Title)
		}
	}
	return out
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// daysBetween counts calendar days from a to b, both at midnight.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

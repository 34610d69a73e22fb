package bd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/logger"
)

// MinutesPerDay converts bd estimates (minutes) into working days.
const MinutesPerDay = 8 * 60

// Client wraps the bd CLI binary for reading issues and their dependencies.
type Client struct {
	BdBin  string // path to bd binary (default: "bd")
	DbPath string // --db flag value (optional)

	exec func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewClient creates a Client using the given bd binary path and database path.
func NewClient(bdBin, dbPath string) *Client {
	if bdBin == "" {
		bdBin = "bd"
	}
	return &Client{BdBin: bdBin, DbPath: dbPath, exec: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (c *Client) baseArgs() []string {
	if c.DbPath != "" {
		return []string{"--db", c.DbPath}
	}
	return nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	all := append(c.baseArgs(), args...)
	out, err := c.exec(ctx, c.BdBin, all...)
	if err != nil {
		return nil, fmt.Errorf("bd %s: %w\n%s", strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// RawTask is the JSON structure returned by bd list/show.
type RawTask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Priority    int      `json:"priority"`
	Type        string   `json:"issue_type"`
	Labels      []string `json:"labels,omitempty"`
	Description string   `json:"description"`
	Estimate    int      `json:"estimate,omitempty"` // minutes

	// Dependencies are not in bd JSON output; Fetch fills them via Deps.
	BlockedBy []string `json:"-"`
}

// ListOpen returns all open tasks.
func (c *Client) ListOpen(ctx context.Context) ([]RawTask, error) {
	out, err := c.run(ctx, "list", "--json", "--status", "open", "--limit", "0")
	if err != nil {
		return nil, err
	}
	var tasks []RawTask
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, fmt.Errorf("parse bd list output: %w", err)
	}
	return tasks, nil
}

// Show returns full details for a single task.
func (c *Client) Show(ctx context.Context, id string) (*RawTask, error) {
	out, err := c.run(ctx, "show", id, "--json")
	if err != nil {
		return nil, err
	}
	var task RawTask
	if err := json.Unmarshal(out, &task); err != nil {
		return nil, fmt.Errorf("parse bd show output: %w", err)
	}
	return &task, nil
}

// Deps returns the ids a task depends on (bd dep list <id> --direction=down).
func (c *Client) Deps(ctx context.Context, id string) ([]string, error) {
	out, err := c.run(ctx, "dep", "list", id, "--direction=down", "--json")
	if err != nil {
		// dep list may fail if no deps exist; treat as empty
		logger.WithField("task", id).Debugf("bd dep list: %v", err)
		return nil, nil
	}
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("parse bd dep list for %s: invalid JSON", id)
	}

	var ids []string
	gjson.GetBytes(out, "#.id").ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			ids = append(ids, s)
		}
		return true
	})
	return ids, nil
}

// Fetch lists open tasks and fills in each task's dependencies.
func (c *Client) Fetch(ctx context.Context) ([]RawTask, error) {
	tasks, err := c.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deps, err := c.Deps(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].BlockedBy = deps
	}
	return tasks, nil
}

// FetchIDs reads the named issues and their dependencies. Dependencies on
// issues outside ids are left for ToTasks to drop.
func (c *Client) FetchIDs(ctx context.Context, ids []string) ([]RawTask, error) {
	tasks := make([]RawTask, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := c.Show(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.ID == "" {
			t.ID = id
		}
		if t.BlockedBy, err = c.Deps(ctx, t.ID); err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// EstimateDays converts a minute estimate to whole days, rounding up. A
// missing or non-positive estimate is one day.
func EstimateDays(minutes int) int {
	if minutes <= 0 {
		return 1
	}
	return (minutes + MinutesPerDay - 1) / MinutesPerDay
}

// ToTasks maps bd issues onto tasks, keeping bd ids. Dependencies on issues
// outside the set (closed or filtered out) are dropped.
func ToTasks(raw []RawTask) ([]graph.Task, []graph.Edge) {
	known := make(map[string]bool, len(raw))
	for _, r := range raw {
		known[r.ID] = true
	}

	tasks := make([]graph.Task, 0, len(raw))
	var edges []graph.Edge
	seen := make(map[graph.Edge]bool)
	for _, r := range raw {
		tasks = append(tasks, graph.Task{
			ID:           r.ID,
			Title:        r.Title,
			DurationDays: EstimateDays(r.Estimate),
		})
		for _, dep := range r.BlockedBy {
			e := graph.Edge{DependencyID: dep, DependentID: r.ID}
			if !known[dep] || dep == r.ID || seen[e] {
				continue
			}
			seen[e] = true
			edges = append(edges, e)
		}
	}
	return tasks, edges
}

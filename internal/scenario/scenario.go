// Package scenario loads canned task sets into a store: the standard five-task
// project and user-written scenario files in JSON, YAML or HCL.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/logger"
	"github.com/joshharrison/critpath/internal/store"
)

// Scenario is a set of tasks addressed by local refs, the edges between them
// and an optional list of refs to delete after the first report.
type Scenario struct {
	Tasks        []TaskSpec `json:"tasks" yaml:"tasks"`
	Dependencies []DepSpec  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Deletions    []string   `json:"deletions,omitempty" yaml:"deletions,omitempty"`
}

type TaskSpec struct {
	Ref          string `json:"ref" yaml:"ref"`
	Title        string `json:"title" yaml:"title"`
	DurationDays int    `json:"durationDays,omitempty" yaml:"durationDays,omitempty"`
	DueDate      string `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
}

type DepSpec struct {
	Dependency string `json:"dependency" yaml:"dependency"`
	Dependent  string `json:"dependent" yaml:"dependent"`
}

// hclScenarioFile is the decode target for .hcl scenarios:
//
//	task "A" {
//	  title         = "Design"
//	  duration_days = 3
//	  due_date      = "+10d"
//	}
//	dependency {
//	  dependency = "A"
//	  dependent  = "B"
//	}
//	deletions = ["C"]
type hclScenarioFile struct {
	Tasks        []*hclTask `hcl:"task,block"`
	Dependencies []*hclDep  `hcl:"dependency,block"`
	Deletions    []string   `hcl:"deletions,optional"`
}

type hclTask struct {
	Ref          string `hcl:"ref,label"`
	Title        string `hcl:"title"`
	DurationDays int    `hcl:"duration_days,optional"`
	DueDate      string `hcl:"due_date,optional"`
}

type hclDep struct {
	Dependency string `hcl:"dependency"`
	Dependent  string `hcl:"dependent"`
}

// Load reads a scenario file, choosing the format by extension.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes data using the format implied by name's extension.
func Parse(name string, data []byte) (*Scenario, error) {
	var sc Scenario
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	case ".hcl":
		parsed, err := parseHCL(name, data)
		if err != nil {
			return nil, err
		}
		sc = *parsed
	default:
		return nil, fmt.Errorf("unsupported scenario format %q (want .json, .yaml, .yml or .hcl)", ext)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &sc, nil
}

func parseHCL(name string, data []byte) (*Scenario, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", name, diags)
	}

	var parsed hclScenarioFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", name, diags)
	}

	sc := &Scenario{Deletions: parsed.Deletions}
	for _, t := range parsed.Tasks {
		sc.Tasks = append(sc.Tasks, TaskSpec{
			Ref:          t.Ref,
			Title:        t.Title,
			DurationDays: t.DurationDays,
			DueDate:      t.DueDate,
		})
	}
	for _, d := range parsed.Dependencies {
		sc.Dependencies = append(sc.Dependencies, DepSpec{Dependency: d.Dependency, Dependent: d.Dependent})
	}
	return sc, nil
}

// Validate checks that refs are unique and that every edge and deletion
// names a declared ref.
func (sc *Scenario) Validate() error {
	refs := make(map[string]bool, len(sc.Tasks))
	for i, t := range sc.Tasks {
		if t.Ref == "" {
			return fmt.Errorf("task %d: ref is required", i)
		}
		if refs[t.Ref] {
			return fmt.Errorf("duplicate task ref %q", t.Ref)
		}
		refs[t.Ref] = true
	}
	for _, d := range sc.Dependencies {
		if !refs[d.Dependency] {
			return fmt.Errorf("dependency %s -> %s: unknown ref %q", d.Dependency, d.Dependent, d.Dependency)
		}
		if !refs[d.Dependent] {
			return fmt.Errorf("dependency %s -> %s: unknown ref %q", d.Dependency, d.Dependent, d.Dependent)
		}
	}
	for _, ref := range sc.Deletions {
		if !refs[ref] {
			return fmt.Errorf("deletion: unknown ref %q", ref)
		}
	}
	return nil
}

var relativeDue = regexp.MustCompile(`(?i)^([+-])(\d+)d$`)

// ParseDueDate accepts "+Nd" or "-Nd" relative to the start of ref's day,
// a calendar date (2006-01-02) or an RFC 3339 timestamp. Empty or
// unparseable input yields nil.
func ParseDueDate(s string, ref time.Time) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if m := relativeDue.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		if m[1] == "-" {
			n = -n
		}
		d := cpm.AddDays(cpm.StartOfDay(ref), n)
		return &d
	}

	if d, err := time.ParseInLocation("2006-01-02", s, ref.Location()); err == nil {
		return &d
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return &d
	}
	return nil
}

// Standard is the five-task reference project: a design task fanning out to
// backend and frontend, joined by integration and followed by QA.
func Standard() *Scenario {
	return &Scenario{
		Tasks: []TaskSpec{
			{Ref: "A", Title: "A: Design", DurationDays: 3, DueDate: "+10d"},
			{Ref: "B", Title: "B: Backend", DurationDays: 5, DueDate: "+15d"},
			{Ref: "C", Title: "C: Frontend", DurationDays: 4, DueDate: "+15d"},
			{Ref: "D", Title: "D: Integration", DurationDays: 2, DueDate: "+18d"},
			{Ref: "E", Title: "E: QA", DurationDays: 3, DueDate: "+21d"},
		},
		Dependencies: []DepSpec{
			{Dependency: "A", Dependent: "B"},
			{Dependency: "A", Dependent: "C"},
			{Dependency: "B", Dependent: "D"},
			{Dependency: "C", Dependent: "D"},
			{Dependency: "D", Dependent: "E"},
		},
	}
}

// StepFunc is called after the load and after the deletions.
type StepFunc func(header string) error

// Apply resets st and loads sc into it. Edges go through the store's
// dependency gate, so a cyclic scenario is rejected. It returns the ids
// assigned to each ref.
func Apply(ctx context.Context, st *store.Store, sc *Scenario, ref time.Time, onStep StepFunc) (map[string]string, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if err := st.Reset(); err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(sc.Tasks))
	for _, t := range sc.Tasks {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		created, err := st.Create(store.NewTask{
			Title:        t.Title,
			DurationDays: t.DurationDays,
			DueDate:      ParseDueDate(t.DueDate, ref),
		})
		if err != nil {
			return ids, fmt.Errorf("create %s: %w", t.Ref, err)
		}
		ids[t.Ref] = created.ID
	}

	// Group by dependent so each task's set is written once, in file order.
	var order []string
	deps := make(map[string][]string)
	for _, d := range sc.Dependencies {
		if _, ok := deps[d.Dependent]; !ok {
			order = append(order, d.Dependent)
		}
		deps[d.Dependent] = append(deps[d.Dependent], ids[d.Dependency])
	}
	for _, dependent := range order {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		if _, err := st.ReplaceDependencies(ids[dependent], deps[dependent]); err != nil {
			return ids, fmt.Errorf("dependencies of %s: %w", dependent, err)
		}
	}

	logger.Infof("loaded %d tasks and %d dependencies", len(sc.Tasks), len(sc.Dependencies))
	if onStep != nil {
		if err := onStep("After load"); err != nil {
			return ids, err
		}
	}

	if len(sc.Deletions) == 0 {
		return ids, nil
	}
	for _, ref := range sc.Deletions {
		id, ok := ids[ref]
		if !ok {
			continue
		}
		if err := st.Delete(id); err != nil {
			return ids, fmt.Errorf("delete %s: %w", ref, err)
		}
		delete(ids, ref)
	}

	logger.Infof("deleted %d tasks", len(sc.Deletions))
	if onStep != nil {
		return ids, onStep("After deletions")
	}
	return ids, nil
}

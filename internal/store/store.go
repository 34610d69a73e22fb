package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/logger"
)

const storeDir = ".critpath"
const storeFile = "tasks.json"

// MaxDurationDays bounds a task's duration so schedule offsets stay far
// from integer overflow.
const MaxDurationDays = 3650

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTitleRequired      = errors.New("title is required")
	ErrInvalidDuration    = fmt.Errorf("durationDays must be a positive integer no greater than %d", MaxDurationDays)
	ErrNoFields           = errors.New("no fields to update")
	ErrSelfDependency     = errors.New("a task cannot depend on itself")
	ErrCircularDependency = errors.New("circular dependency detected")
)

// DefaultPath is where the CLI keeps its store when --store is not given.
func DefaultPath() string {
	return filepath.Join(storeDir, storeFile)
}

// Store holds the task/edge collection and keeps every task's derived
// schedule current. Each mutation runs under one lock: validate against the
// committed snapshot, commit, recompute, persist.
type Store struct {
	mu    sync.Mutex
	path  string // empty for in-memory stores
	data  snapshot
	clock func() time.Time
	newID func() string
}

type snapshot struct {
	Tasks      []graph.Task `json:"tasks"`
	Edges      []graph.Edge `json:"edges"`
	ComputedAt *time.Time   `json:"computedAt,omitempty"`
}

// NewTask is the input for Create.
type NewTask struct {
	Title        string
	DurationDays int
	DueDate      *time.Time
}

// Patch is the input for Update. Nil fields are left unchanged.
type Patch struct {
	Title        *string
	DurationDays *int
	DueDate      *time.Time
	ClearDueDate bool
}

// Open loads the store at path, or starts an empty one that is written on
// the first mutation.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	s := newStore(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", path, err)
	}
	return s, nil
}

// OpenMemory returns a store that never touches disk.
func OpenMemory() *Store {
	return newStore("")
}

func newStore(path string) *Store {
	return &Store{
		path:  path,
		clock: time.Now,
		newID: uuid.NewString,
	}
}

// SetClock replaces the time source used for creation stamps and schedule
// reference dates.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Path returns the backing file, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// Snapshot returns copies of the committed tasks and edges.
func (s *Store) Snapshot() ([]graph.Task, []graph.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksLocked(), s.edgesLocked()
}

// ComputedAt is when the derived fields were last recomputed successfully,
// or nil when they are unknown.
func (s *Store) ComputedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.ComputedAt == nil {
		return nil
	}
	at := *s.data.ComputedAt
	return &at
}

// List returns all tasks in creation order.
func (s *Store) List() []graph.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksLocked()
}

// ListNewestFirst returns all tasks, most recently created first.
func (s *Store) ListNewestFirst() []graph.Task {
	tasks := s.List()
	for i, j := 0, len(tasks)-1; i < j; i, j = i+1, j-1 {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	}
	return tasks
}

// Edges returns all committed dependency edges.
func (s *Store) Edges() []graph.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesLocked()
}

// Get returns a single task.
func (s *Store) Get(id string) (graph.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return graph.Task{}, notFound(id)
	}
	return s.data.Tasks[i], nil
}

// Create adds a task and recomputes the schedule.
func (s *Store) Create(in NewTask) (graph.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return graph.Task{}, ErrTitleRequired
	}

	duration := in.DurationDays
	if duration < 1 {
		duration = 1
	}
	if duration > MaxDurationDays {
		return graph.Task{}, ErrInvalidDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.data.clone()

	t := graph.Task{
		ID:           s.newID(),
		Title:        title,
		DurationDays: duration,
		DueDate:      normalizeDate(in.DueDate),
		CreatedAt:    s.clock(),
	}
	s.data.Tasks = append(s.data.Tasks, t)

	logger.WithFields(logrus.Fields{"task": t.ID, "title": t.Title, "duration": duration}).Debug("task created")

	err := s.commitLocked(prev)
	if !committed(err) {
		return graph.Task{}, err
	}
	return s.data.Tasks[len(s.data.Tasks)-1], err
}

// Update applies a patch and recomputes the schedule.
func (s *Store) Update(id string, p Patch) (graph.Task, error) {
	if p.Title == nil && p.DurationDays == nil && p.DueDate == nil && !p.ClearDueDate {
		return graph.Task{}, ErrNoFields
	}
	if p.DurationDays != nil && (*p.DurationDays < 1 || *p.DurationDays > MaxDurationDays) {
		return graph.Task{}, ErrInvalidDuration
	}
	var title string
	if p.Title != nil {
		title = strings.TrimSpace(*p.Title)
		if title == "" {
			return graph.Task{}, ErrTitleRequired
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return graph.Task{}, notFound(id)
	}

	prev := s.data.clone()
	t := &s.data.Tasks[i]
	if p.Title != nil {
		t.Title = title
	}
	if p.DurationDays != nil {
		t.DurationDays = *p.DurationDays
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		t.DueDate = normalizeDate(p.DueDate)
	}

	logger.WithField("task", id).Debug("task updated")

	err := s.commitLocked(prev)
	if !committed(err) {
		return graph.Task{}, err
	}
	return s.data.Tasks[i], err
}

// Delete removes a task and every edge touching it, then recomputes.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return notFound(id)
	}
	prev := s.data.clone()
	s.data.Tasks = append(s.data.Tasks[:i], s.data.Tasks[i+1:]...)

	kept := s.data.Edges[:0]
	for _, e := range s.data.Edges {
		if e.DependencyID != id && e.DependentID != id {
			kept = append(kept, e)
		}
	}
	s.data.Edges = kept

	logger.WithField("task", id).Debug("task deleted")

	return s.commitLocked(prev)
}

// Dependencies returns the tasks id depends on, in commit order.
func (s *Store) Dependencies(id string) ([]graph.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return nil, notFound(id)
	}
	var deps []graph.Task
	for _, e := range s.data.Edges {
		if e.DependentID != id {
			continue
		}
		if j := s.indexLocked(e.DependencyID); j >= 0 {
			deps = append(deps, s.data.Tasks[j])
		}
	}
	return deps, nil
}

// Dependents returns the tasks that depend on id, in commit order.
func (s *Store) Dependents(id string) ([]graph.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return nil, notFound(id)
	}
	var out []graph.Task
	for _, e := range s.data.Edges {
		if e.DependencyID != id {
			continue
		}
		if j := s.indexLocked(e.DependentID); j >= 0 {
			out = append(out, s.data.Tasks[j])
		}
	}
	return out, nil
}

// CheckDependencies validates replacing id's dependency set with depIDs
// without committing anything. It returns the edges that would be written.
func (s *Store) CheckDependencies(id string, depIDs []string) ([]graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposeLocked(id, depIDs)
}

// ReplaceDependencies replaces the full dependency set of id. Empty and
// repeated ids are ignored. The change is rejected if id is among depIDs,
// if any id is unknown, or if it would introduce a cycle.
func (s *Store) ReplaceDependencies(id string, depIDs []string) (graph.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposed, err := s.proposeLocked(id, depIDs)
	if err != nil {
		return graph.Task{}, err
	}

	prev := s.data.clone()
	kept := make([]graph.Edge, 0, len(s.data.Edges)+len(proposed))
	for _, e := range s.data.Edges {
		if e.DependentID != id {
			kept = append(kept, e)
		}
	}
	s.data.Edges = append(kept, proposed...)

	logger.WithFields(logrus.Fields{"task": id, "dependencies": len(proposed)}).Debug("dependencies replaced")

	err = s.commitLocked(prev)
	if !committed(err) {
		return graph.Task{}, err
	}
	return s.data.Tasks[s.indexLocked(id)], err
}

// AddDependency adds a single edge, keeping the rest of the set.
func (s *Store) AddDependency(dependentID, dependencyID string) error {
	dependencyID = strings.TrimSpace(dependencyID)
	if dependencyID == "" {
		return notFound(dependencyID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := []string{dependencyID}
	for _, e := range s.data.Edges {
		if e.DependentID == dependentID {
			current = append(current, e.DependencyID)
		}
	}
	proposed, err := s.proposeLocked(dependentID, current)
	if err != nil {
		return err
	}

	for _, e := range s.data.Edges {
		if e == proposed[0] {
			return nil
		}
	}
	prev := s.data.clone()
	s.data.Edges = append(s.data.Edges, proposed[0])

	return s.commitLocked(prev)
}

// Replace swaps the whole collection for tasks and edges. Tasks without an
// id get one; edges must reference the given tasks, contain no self-edges
// and form a DAG.
func (s *Store) Replace(tasks []graph.Task, edges []graph.Edge) error {
	next := make([]graph.Task, len(tasks))
	copy(next, tasks)

	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(next))
	for i := range next {
		if next[i].ID == "" {
			next[i].ID = s.newID()
		}
		if next[i].CreatedAt.IsZero() {
			next[i].CreatedAt = s.clock()
		}
		if strings.TrimSpace(next[i].Title) == "" {
			return fmt.Errorf("task %s: %w", next[i].ID, ErrTitleRequired)
		}
		if next[i].DurationDays > MaxDurationDays {
			return fmt.Errorf("task %s: %w", next[i].ID, ErrInvalidDuration)
		}
		next[i].DueDate = normalizeDate(next[i].DueDate)
		known[next[i].ID] = true
	}
	for _, e := range edges {
		if e.DependencyID == e.DependentID {
			return fmt.Errorf("task %s: %w", e.DependentID, ErrSelfDependency)
		}
		if !known[e.DependencyID] {
			return notFound(e.DependencyID)
		}
		if !known[e.DependentID] {
			return notFound(e.DependentID)
		}
	}
	if cpm.WouldCreateCycle(graph.IDs(next), nil, edges) {
		return ErrCircularDependency
	}

	prev := s.data.clone()
	s.data.Tasks = next
	s.data.Edges = append([]graph.Edge(nil), edges...)

	logger.WithFields(logrus.Fields{"tasks": len(next), "edges": len(edges)}).Debug("store replaced")

	return s.commitLocked(prev)
}

// Reset removes every task and edge.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.data
	s.data = snapshot{}
	if err := s.saveLocked(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

// Recompute runs a full schedule pass and persists the result.
func (s *Store) Recompute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(s.data.clone())
}

// commitLocked recomputes and persists. A failed recompute leaves every
// derived field cleared, never stale, and the cleared state is persisted.
// If the write fails the in-memory state goes back to prev.
func (s *Store) commitLocked(prev snapshot) error {
	recomputeErr := s.recomputeLocked()
	if err := s.saveLocked(); err != nil {
		s.data = prev
		return err
	}
	return recomputeErr
}

// committed reports whether a commit error still left the mutation in
// place, which is the case only when the schedule could not be derived.
func committed(err error) bool {
	return err == nil || errors.Is(err, cpm.ErrCycleDetected)
}

func (d snapshot) clone() snapshot {
	return snapshot{
		Tasks:      append([]graph.Task(nil), d.Tasks...),
		Edges:      append([]graph.Edge(nil), d.Edges...),
		ComputedAt: d.ComputedAt,
	}
}

func (s *Store) recomputeLocked() error {
	ref := s.clock()
	sched, err := cpm.RecomputeAt(s.data.Tasks, s.data.Edges, ref)
	if err != nil {
		cpm.Invalidate(s.data.Tasks)
		s.data.ComputedAt = nil
		logger.WithFields(logrus.Fields{
			"tasks": len(s.data.Tasks),
			"edges": len(s.data.Edges),
		}).Errorf("recompute schedule: %v", err)
		return fmt.Errorf("recompute schedule: %w", err)
	}

	cpm.Apply(s.data.Tasks, sched)
	s.data.ComputedAt = &ref

	logger.WithFields(logrus.Fields{
		"tasks": len(s.data.Tasks),
		"edges": len(s.data.Edges),
	}).Debug("schedule recomputed")
	return nil
}

func (s *Store) proposeLocked(id string, depIDs []string) ([]graph.Edge, error) {
	if s.indexLocked(id) < 0 {
		return nil, notFound(id)
	}

	seen := make(map[string]bool, len(depIDs))
	var proposed []graph.Edge
	for _, dep := range depIDs {
		dep = strings.TrimSpace(dep)
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		if dep == id {
			return nil, ErrSelfDependency
		}
		if s.indexLocked(dep) < 0 {
			return nil, notFound(dep)
		}
		proposed = append(proposed, graph.Edge{DependencyID: dep, DependentID: id})
	}

	committed := make([]graph.Edge, 0, len(s.data.Edges))
	for _, e := range s.data.Edges {
		if e.DependentID != id {
			committed = append(committed, e)
		}
	}
	if cpm.WouldCreateCycle(graph.IDs(s.data.Tasks), committed, proposed) {
		return nil, ErrCircularDependency
	}
	return proposed, nil
}

func (s *Store) indexLocked(id string) int {
	for i := range s.data.Tasks {
		if s.data.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) tasksLocked() []graph.Task {
	out := make([]graph.Task, len(s.data.Tasks))
	copy(out, s.data.Tasks)
	return out
}

func (s *Store) edgesLocked() []graph.Edge {
	out := make([]graph.Edge, len(s.data.Edges))
	copy(out, s.data.Edges)
	return out
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// normalizeDate drops the time of day; due dates are calendar dates.
func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := cpm.StartOfDay(*t)
	return &d
}

// Ref names a related task.
type Ref struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Detail is a task together with its direct neighbours.
type Detail struct {
	graph.Task
	Dependencies []Ref `json:"dependencies"`
	Dependents   []Ref `json:"dependents"`
}

// ListDetailed returns every task, newest first, with its dependencies and
// dependents resolved to refs.
func (s *Store) ListDetailed() []Detail {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Detail, 0, len(s.data.Tasks))
	for i := len(s.data.Tasks) - 1; i >= 0; i-- {
		out = append(out, s.detailLocked(i))
	}
	return out
}

// Detail returns a single task with its neighbours.
func (s *Store) Detail(id string) (Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Detail{}, notFound(id)
	}
	return s.detailLocked(i), nil
}

func (s *Store) detailLocked(i int) Detail {
	t := s.data.Tasks[i]
	d := Detail{Task: t, Dependencies: []Ref{}, Dependents: []Ref{}}
	for _, e := range s.data.Edges {
		switch t.ID {
		case e.DependentID:
			d.Dependencies = append(d.Dependencies, s.refLocked(e.DependencyID))
		case e.DependencyID:
			d.Dependents = append(d.Dependents, s.refLocked(e.DependentID))
		}
	}
	return d
}

func (s *Store) refLocked(id string) Ref {
	r := Ref{ID: id}
	if i := s.indexLocked(id); i >= 0 {
		r.Title = s.data.Tasks[i].Title
	}
	return r
}

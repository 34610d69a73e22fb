package scenario

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/critpath/internal/store"
)

var ref = time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2026, time.March, 2+offset, 0, 0, 0, 0, time.UTC)
}

func TestLoad_FormatsAgree(t *testing.T) {
	want, err := Load(filepath.Join("testdata", "diamond.json"))
	require.NoError(t, err)
	require.Len(t, want.Tasks, 4)
	assert.Equal(t, []string{"B"}, want.Deletions)

	for _, name := range []string{"diamond.yaml", "diamond.hcl"} {
		t.Run(name, func(t *testing.T) {
			got, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("scenario mismatch (-json +%s):\n%s", name, diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"unknown extension", "x.toml", ""},
		{"bad json", "x.json", "{"},
		{"duplicate ref", "x.json", `{"tasks":[{"ref":"a","title":"A"},{"ref":"a","title":"B"}]}`},
		{"missing ref", "x.json", `{"tasks":[{"title":"A"}]}`},
		{"unknown edge ref", "x.json", `{"tasks":[{"ref":"a","title":"A"}],"dependencies":[{"dependency":"a","dependent":"b"}]}`},
		{"unknown deletion", "x.yaml", "tasks:\n  - ref: a\n    title: A\ndeletions: [z]\n"},
		{"bad hcl", "x.hcl", `task "a" {`},
		{"hcl missing title", "x.hcl", `task "a" {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, []byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"", nil},
		{"  ", nil},
		{"+10d", ptr(day(10))},
		{"-2D", ptr(day(-2))},
		{"+0d", ptr(day(0))},
		{"2026-04-01", ptr(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))},
		{"2026-04-01T09:30:00Z", ptr(time.Date(2026, time.April, 1, 9, 30, 0, 0, time.UTC))},
		{"next tuesday", nil},
		{"+d", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDueDate(tt.in, ref))
		})
	}
}

func TestApply_Standard(t *testing.T) {
	st := store.OpenMemory()
	st.SetClock(func() time.Time { return ref })

	var steps []string
	ids, err := Apply(context.Background(), st, Standard(), ref, func(header string) error {
		steps = append(steps, header)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"After load"}, steps)
	assert.Len(t, ids, 5)

	tasks := st.List()
	require.Len(t, tasks, 5)
	assert.Equal(t, "A: Design", tasks[0].Title)
	assert.Equal(t, day(10), *tasks[0].DueDate)
	assert.Equal(t, day(21), *tasks[4].DueDate)
	assert.Equal(t, day(13), *tasks[4].EarliestFinish)
	assert.False(t, tasks[2].CriticalPath, "frontend has one day of slack")
	assert.Len(t, st.Edges(), 5)
}

func TestApply_Deletions(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "diamond.hcl"))
	require.NoError(t, err)

	st := store.OpenMemory()
	st.SetClock(func() time.Time { return ref })

	var finishes []time.Time
	ids, err := Apply(context.Background(), st, sc, ref, func(header string) error {
		for _, tk := range st.List() {
			if tk.Title == "Integration" {
				finishes = append(finishes, *tk.EarliestFinish)
			}
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(10), day(9)}, finishes)
	assert.NotContains(t, ids, "B")
	assert.Len(t, st.List(), 3)
	assert.Len(t, st.Edges(), 2)
	for _, tk := range st.List() {
		assert.True(t, tk.CriticalPath, tk.Title)
	}
}

func TestApply_ReplacesExistingTasks(t *testing.T) {
	st := store.OpenMemory()
	_, err := st.Create(store.NewTask{Title: "leftover", DurationDays: 1})
	require.NoError(t, err)

	_, err = Apply(context.Background(), st, Standard(), ref, nil)
	require.NoError(t, err)
	assert.Len(t, st.List(), 5)
}

func TestApply_RejectsCycle(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "cycle.json"))
	require.NoError(t, err)

	_, err = Apply(context.Background(), store.OpenMemory(), sc, ref, nil)
	assert.ErrorIs(t, err, store.ErrCircularDependency)
}

func TestApply_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Apply(ctx, store.OpenMemory(), Standard(), ref, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func ptr(t time.Time) *time.Time { return &t }

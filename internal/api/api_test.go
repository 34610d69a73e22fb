package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/reporter"
	"github.com/joshharrison/critpath/internal/store"
)

var refTime = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.OpenMemory()
	st.SetClock(func() time.Time { return refTime })
	srv := New(st)
	srv.clock = func() time.Time { return refTime }
	return srv, st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rec)["error"]
}

func create(t *testing.T, h http.Handler, title string, days int) graph.Task {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/tasks", map[string]any{"title": title, "durationDays": days})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[graph.Task](t, rec)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func TestCreateTask(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/tasks", map[string]any{
		"title":        "Design",
		"durationDays": 3,
		"dueDate":      "2026-03-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	tk := decode[graph.Task](t, rec)
	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, 3, tk.DurationDays)
	require.NotNil(t, tk.DueDate)
	assert.Equal(t, "2026-03-10", tk.DueDate.Format("2006-01-02"))
	require.NotNil(t, tk.EarliestFinish)
	assert.Equal(t, "2026-03-05", tk.EarliestFinish.Format("2006-01-02"))
	assert.True(t, tk.CriticalPath)
}

func TestCreateTask_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/tasks", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Title is required", errorOf(t, rec))

	rec = do(t, srv, http.MethodPost, "/tasks", "{oops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/tasks", map[string]any{"title": "x", "dueDate": "someday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, d := range []any{0, -4, "7", nil} {
		rec = do(t, srv, http.MethodPost, "/tasks", map[string]any{"title": "x", "durationDays": d})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, 1, decode[graph.Task](t, rec).DurationDays, fmt.Sprint(d))
	}

	rec = do(t, srv, http.MethodPost, "/tasks", map[string]any{"title": "x", "durationDays": 2.7})
	assert.Equal(t, 2, decode[graph.Task](t, rec).DurationDays)

	for _, d := range []any{store.MaxDurationDays + 1, 9.3e18, 1e300} {
		rec = do(t, srv, http.MethodPost, "/tasks", map[string]any{"title": "x", "durationDays": d})
		assert.Equal(t, http.StatusBadRequest, rec.Code, fmt.Sprint(d))
		assert.Equal(t, store.ErrInvalidDuration.Error(), errorOf(t, rec))
	}
}

func TestListTasks_NewestFirstWithNeighbours(t *testing.T) {
	srv, _ := newTestServer(t)
	a := create(t, srv, "A", 2)
	b := create(t, srv, "B", 1)

	rec := do(t, srv, http.MethodPut, "/tasks/"+b.ID+"/dependencies", map[string]any{"dependencyIds": []string{a.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]store.Detail](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].Title)
	assert.Equal(t, []store.Ref{{ID: a.ID, Title: "A"}}, list[0].Dependencies)
	assert.Equal(t, []store.Ref{{ID: b.ID, Title: "B"}}, list[1].Dependents)
	assert.Equal(t, "2026-03-04", list[0].EarliestStart.Format("2006-01-02"))
}

func TestEmptyList(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/tasks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetTask(t *testing.T) {
	srv, _ := newTestServer(t)
	a := create(t, srv, "A", 2)

	rec := do(t, srv, http.MethodGet, "/tasks/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID, decode[store.Detail](t, rec).ID)

	rec = do(t, srv, http.MethodGet, "/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found", errorOf(t, rec))
}

func TestUpdateTask(t *testing.T) {
	srv, _ := newTestServer(t)
	a := create(t, srv, "A", 2)
	path := "/tasks/" + a.ID

	rec := do(t, srv, http.MethodPatch, path, map[string]any{"durationDays": 5, "title": " Renamed "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[graph.Task](t, rec)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 5, got.DurationDays)
	assert.Equal(t, "2026-03-07", got.EarliestFinish.Format("2006-01-02"))

	for body, want := range map[string]int{
		`{"durationDays": "3"}`:       3,
		`{"durationDays": "2.5"}`:     2,
		`{"durationDays": " 4 days"}`: 4,
		`{"durationDays": 3650}`:      store.MaxDurationDays,
	} {
		rec = do(t, srv, http.MethodPatch, path, body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, want, decode[graph.Task](t, rec).DurationDays, body)
	}
	rec = do(t, srv, http.MethodPatch, path, map[string]any{"durationDays": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPatch, path, map[string]any{"dueDate": "+4d"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-06", decode[graph.Task](t, rec).DueDate.Format("2006-01-02"))

	rec = do(t, srv, http.MethodPatch, path, `{"dueDate": null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[graph.Task](t, rec).DueDate)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"zero duration", map[string]any{"durationDays": 0}, store.ErrInvalidDuration.Error()},
		{"junk duration", map[string]any{"durationDays": "abc"}, store.ErrInvalidDuration.Error()},
		{"huge duration", map[string]any{"durationDays": 1e18}, store.ErrInvalidDuration.Error()},
		{"huge duration string", map[string]any{"durationDays": "99999999999999999999"}, store.ErrInvalidDuration.Error()},
		{"blank title", map[string]any{"title": ""}, "Title is required"},
		{"no fields", map[string]any{"color": "blue"}, "no fields to update"},
		{"non-string title", map[string]any{"title": 7}, "no fields to update"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPatch, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
		})
	}

	rec = do(t, srv, http.MethodPatch, "/tasks/missing", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	srv, st := newTestServer(t)
	a := create(t, srv, "A", 2)
	b := create(t, srv, "B", 1)
	do(t, srv, http.MethodPut, "/tasks/"+b.ID+"/dependencies", map[string]any{"dependencyIds": []string{a.ID}})

	rec := do(t, srv, http.MethodDelete, "/tasks/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.Edges())

	got, err := st.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", got.EarliestStart.Format("2006-01-02"))

	rec = do(t, srv, http.MethodDelete, "/tasks/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDependencies(t *testing.T) {
	srv, st := newTestServer(t)
	a := create(t, srv, "A", 1)
	b := create(t, srv, "B", 1)
	c := create(t, srv, "C", 1)

	rec := do(t, srv, http.MethodGet, "/tasks/"+c.ID+"/dependencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodPut, "/tasks/"+c.ID+"/dependencies", map[string]any{"dependencyIds": []string{a.ID, b.ID, "", a.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[store.Detail](t, rec)
	assert.Len(t, detail.Dependencies, 2)
	assert.Equal(t, "2026-03-03", detail.EarliestStart.Format("2006-01-02"))

	rec = do(t, srv, http.MethodGet, "/tasks/"+c.ID+"/dependencies", nil)
	deps := decode[[]graph.Task](t, rec)
	require.Len(t, deps, 2)
	assert.Equal(t, a.ID, deps[0].ID)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		want   string
	}{
		{"cycle", "/tasks/" + a.ID + "/dependencies", map[string]any{"dependencyIds": []string{c.ID}}, http.StatusBadRequest, "Circular dependency detected"},
		{"self", "/tasks/" + a.ID + "/dependencies", map[string]any{"dependencyIds": []string{a.ID}}, http.StatusBadRequest, "a task cannot depend on itself"},
		{"unknown dependency", "/tasks/" + a.ID + "/dependencies", map[string]any{"dependencyIds": []string{"ghost"}}, http.StatusNotFound, "Task not found"},
		{"unknown task", "/tasks/ghost/dependencies", map[string]any{"dependencyIds": []string{}}, http.StatusNotFound, "Task not found"},
		{"not an array", "/tasks/" + a.ID + "/dependencies", map[string]any{"dependencyIds": "x"}, http.StatusBadRequest, "bad request: dependencyIds must be an array"},
		{"missing", "/tasks/" + a.ID + "/dependencies", map[string]any{}, http.StatusBadRequest, "bad request: dependencyIds must be an array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
		})
	}
	assert.Len(t, st.Edges(), 2, "rejected updates commit nothing")

	rec = do(t, srv, http.MethodPut, "/tasks/"+c.ID+"/dependencies", map[string]any{"dependencyIds": []string{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.Edges())
}

func TestScheduleAndGraph(t *testing.T) {
	srv, _ := newTestServer(t)
	ids := map[string]string{}
	for _, tc := range []struct {
		title string
		days  int
	}{{"A", 3}, {"B", 5}, {"C", 4}, {"D", 2}, {"E", 3}} {
		ids[tc.title] = create(t, srv, tc.title, tc.days).ID
	}
	put := func(dependent string, deps ...string) {
		var depIDs []string
		for _, d := range deps {
			depIDs = append(depIDs, ids[d])
		}
		rec := do(t, srv, http.MethodPut, "/tasks/"+ids[dependent]+"/dependencies", map[string]any{"dependencyIds": depIDs})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	put("B", "A")
	put("C", "A")
	put("D", "B", "C")
	put("E", "D")

	rec := do(t, srv, http.MethodGet, "/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decode[reporter.ScheduleReport](t, rec)
	assert.Equal(t, 13, sched.TotalDays)
	assert.Equal(t, []string{ids["A"], ids["B"], ids["D"], ids["E"]}, sched.CriticalPath)

	rec = do(t, srv, http.MethodGet, "/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[Graph](t, rec)
	assert.Len(t, g.Nodes, 5)
	assert.Len(t, g.Edges, 5)
	assert.Equal(t, GraphEdge{From: ids["A"], To: ids["B"]}, g.Edges[0])
	assert.Equal(t, 1, g.Nodes[2].Slack)
	assert.False(t, g.Nodes[2].IsCritical)
	assert.Equal(t, 13, g.Metadata.TotalDays)
	assert.Equal(t, 4, g.Metadata.TotalWaves)
	assert.Equal(t, refTime.Format(time.RFC3339), g.Metadata.GeneratedAt)

	rec = do(t, srv, http.MethodPost, "/recompute", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/schedule", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx, "127.0.0.1:0", ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/logger"
	"github.com/joshharrison/critpath/internal/reporter"
	"github.com/joshharrison/critpath/internal/scenario"
	"github.com/joshharrison/critpath/internal/store"
)

const shutdownTimeout = 5 * time.Second

var errBadRequest = errors.New("bad request")

// Server exposes a store over a JSON HTTP API.
type Server struct {
	store *store.Store
	clock func() time.Time
	mux   *http.ServeMux
}

// New builds the route table for st.
func New(st *store.Store) *Server {
	s := &Server{
		store: st,
		clock: time.Now,
		mux:   http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PATCH /tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("GET /tasks/{id}/dependencies", s.handleGetDependencies)
	s.mux.HandleFunc("PUT /tasks/{id}/dependencies", s.handlePutDependencies)
	s.mux.HandleFunc("GET /schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /graph", s.handleGraph)
	s.mux.HandleFunc("POST /recompute", s.handleRecompute)

	return s
}

// ServeHTTP logs every request at debug level.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	logger.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status,
		"duration": time.Since(start).Round(time.Microsecond),
	}).Debug("request")
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
// The listener is bound before Start returns control to the accept loop, so
// ready (if non-nil) receives the bound address.
func (s *Server) Start(ctx context.Context, addr string, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errLog := logger.L().WriterLevel(logrus.WarnLevel)
	defer errLog.Close()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(errLog, "", 0),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.WithField("address", "http://"+ln.Addr().String()).Info("API server listening")
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Debugf("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListDetailed())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Detail(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type createRequest struct {
	Title        string          `json:"title"`
	DueDate      string          `json:"dueDate"`
	DurationDays json.RawMessage `json:"durationDays"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err))
		return
	}

	due, err := s.parseDate(req.DueDate)
	if err != nil {
		writeError(w, err)
		return
	}

	// Anything that is not a positive number falls back to one day.
	duration := 1
	var f float64
	if len(req.DurationDays) > 0 && json.Unmarshal(req.DurationDays, &f) == nil && f >= 1 {
		if f >= store.MaxDurationDays+1 {
			writeError(w, store.ErrInvalidDuration)
			return
		}
		duration = int(f)
	}

	t, err := s.store.Create(store.NewTask{Title: req.Title, DurationDays: duration, DueDate: due})
	if err != nil && !errors.Is(err, cpm.ErrCycleDetected) {
		writeError(w, err)
		return
	}
	if err != nil {
		// Stored, but the schedule could not be recomputed.
		logger.WithField("task", t.ID).Warnf("create: %v", err)
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err))
		return
	}

	var p store.Patch
	if raw, ok := body["durationDays"]; ok {
		d, err := parseDuration(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		p.DurationDays = &d
	}
	if raw, ok := body["dueDate"]; ok {
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			writeError(w, fmt.Errorf("%w: dueDate must be a string or null", errBadRequest))
			return
		}
		if v == nil || strings.TrimSpace(*v) == "" {
			p.ClearDueDate = true
		} else {
			due, err := s.parseDate(*v)
			if err != nil {
				writeError(w, err)
				return
			}
			p.DueDate = due
		}
	}
	if raw, ok := body["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err == nil {
			p.Title = &title
		}
	}

	t, err := s.store.Update(r.PathValue("id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}

func (s *Server) handleGetDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := s.store.Dependencies(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if deps == nil {
		deps = []graph.Task{}
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) handlePutDependencies(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err))
		return
	}
	var depIDs []string
	raw, ok := body["dependencyIds"]
	if !ok || json.Unmarshal(raw, &depIDs) != nil || depIDs == nil {
		writeError(w, fmt.Errorf("%w: dependencyIds must be an array", errBadRequest))
		return
	}

	id := r.PathValue("id")
	if _, err := s.store.ReplaceDependencies(id, depIDs); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.store.Detail(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	rpt, err := s.report()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rpt.Summary())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	rpt, err := s.report()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGraph(rpt, s.clock()))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Recompute(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.ListDetailed())
}

func (s *Server) report() (*reporter.Reporter, error) {
	tasks, edges := s.store.Snapshot()
	return reporter.New(tasks, edges, s.clock())
}

func (s *Server) parseDate(v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	d := scenario.ParseDueDate(v, s.clock())
	if d == nil {
		return nil, fmt.Errorf("%w: invalid dueDate %q", errBadRequest, v)
	}
	return d, nil
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// parseDuration accepts a JSON number, truncated, or a string whose leading
// integer is used ("2.5" and "2 days" are both 2).
func parseDuration(raw json.RawMessage) (int, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var str string
		if json.Unmarshal(raw, &str) != nil {
			return 0, store.ErrInvalidDuration
		}
		digits := leadingInt.FindString(strings.TrimSpace(str))
		i, err := strconv.Atoi(digits)
		if err != nil {
			return 0, store.ErrInvalidDuration
		}
		n = float64(i)
	}
	if n < 1 || n >= store.MaxDurationDays+1 {
		return 0, store.ErrInvalidDuration
	}
	return int(n), nil
}

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound, "Task not found"
	case errors.Is(err, store.ErrCircularDependency):
		return http.StatusBadRequest, "Circular dependency detected"
	case errors.Is(err, store.ErrTitleRequired):
		return http.StatusBadRequest, "Title is required"
	case errors.Is(err, store.ErrInvalidDuration),
		errors.Is(err, store.ErrNoFields),
		errors.Is(err, store.ErrSelfDependency),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("write response: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/playbook"
	"github.com/aristath/playbooksim/internal/simulator"
)

// maxTimingMs bounds millisecond timing values (one day) so they convert to
// time.Duration without overflow.
const maxTimingMs = 24 * 60 * 60 * 1000

type taskResponse struct {
	simulator.TaskState
	ElapsedMs  int64             `json:"elapsed_ms"`
	Dependents []string          `json:"dependents"`
	Persona    *playbook.Persona `json:"persona,omitempty"`
}

type timingResponse struct {
	TickIntervalMs int `json:"tick_interval_ms"`
	TaskDurationMs int `json:"task_duration_ms"`
	MaxConcurrency int `json:"max_concurrency"`
	StartsPerTick  int `json:"starts_per_tick"`
	RestartDelayMs int `json:"restart_delay_ms"`
}

// updateTimingRequest fields are optional; nil keeps the current value.
type updateTimingRequest struct {
	TickIntervalMs *int `json:"tick_interval_ms"`
	TaskDurationMs *int `json:"task_duration_ms"`
	MaxConcurrency *int `json:"max_concurrency"`
	StartsPerTick  *int `json:"starts_per_tick"`
	RestartDelayMs *int `json:"restart_delay_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Start()
	s.logger.WithCtxValues(r.Context()).Debugf("start requested")
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Pause()
	s.logger.WithCtxValues(r.Context()).Debugf("pause requested")
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Reset()
	s.logger.WithCtxValues(r.Context()).Debugf("reset requested")
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playbook)
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles := s.playbook.TasksByRole()
	if roles == nil {
		roles = []playbook.RoleCount{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		writeJSON(w, http.StatusOK, snap.Tasks)
		return
	}

	var want simulator.Status
	if err := want.UnmarshalText([]byte(status)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	out := make([]simulator.TaskState, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if t.Status == want {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	state, ok := s.ctrl.Snapshot().Task(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	resp := taskResponse{
		TaskState:  state,
		ElapsedMs:  state.Elapsed(time.Now()).Milliseconds(),
		Dependents: s.playbook.Dependents(taskID),
	}
	if resp.Dependents == nil {
		resp.Dependents = []string{}
	}
	if p, ok := s.playbook.Persona(state.Agent); ok {
		resp.Persona = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTiming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, timingToResponse(s.ctrl.Timing()))
}

func (s *Server) handleUpdateTiming(w http.ResponseWriter, r *http.Request) {
	var req updateTimingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	for name, ms := range map[string]*int{
		"tick_interval_ms": req.TickIntervalMs,
		"task_duration_ms": req.TaskDurationMs,
		"restart_delay_ms": req.RestartDelayMs,
	} {
		if ms != nil && *ms > maxTimingMs {
			writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("%s must not exceed %d", name, maxTimingMs))
			return
		}
	}

	timing := s.ctrl.Timing()
	if req.TickIntervalMs != nil {
		timing.TickInterval = msDuration(*req.TickIntervalMs)
	}
	if req.TaskDurationMs != nil {
		timing.TaskDuration = msDuration(*req.TaskDurationMs)
	}
	if req.MaxConcurrency != nil {
		timing.MaxConcurrency = *req.MaxConcurrency
	}
	if req.StartsPerTick != nil {
		timing.StartsPerTick = *req.StartsPerTick
	}
	if req.RestartDelayMs != nil {
		timing.RestartDelay = msDuration(*req.RestartDelayMs)
	}

	if err := s.ctrl.Configure(timing); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		s.logger.WithCtxValues(r.Context()).Errorf("configure timing: %s", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update timing")
		return
	}

	writeJSON(w, http.StatusOK, timingToResponse(timing))
}

// handleLog writes the current log as text. With follow=1 the response stays
// open and streams new lines until the client disconnects.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	tail := parseIntDefault(r.URL.Query().Get("tail"), 0)
	follow := strings.EqualFold(r.URL.Query().Get("follow"), "1") || strings.EqualFold(r.URL.Query().Get("follow"), "true")

	flusher, canFlush := w.(http.Flusher)
	if !follow || !canFlush {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writeLines(w, tailLines(s.ctrl.Snapshot().Log, tail))
		return
	}

	// Subscribe before the snapshot so no line falls in between.
	sub := s.ctrl.Subscribe(0)
	defer s.ctrl.Unsubscribe(sub)
	snap := s.ctrl.Snapshot()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	writeLines(w, tailLines(snap.Log, tail))
	flusher.Flush()

	logger := s.logger.WithCtxValues(r.Context()).WithValues(log.Kv{"run-id": snap.RunID})
	logger.Debugf("log follower attached")

	runID := snap.RunID
	next := len(snap.Log)
	for {
		select {
		case <-r.Context().Done():
			logger.Debugf("log follower detached")
			return
		case <-s.closing:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case events.SimulationStateEvent:
				if ev.State == events.SimReset && ev.RunID > runID {
					runID = ev.RunID
					next = 0
				}
			case events.LogAppendedEvent:
				// A new run may arrive without its reset event. Run IDs are
				// ULIDs, so a later run sorts higher.
				if ev.RunID > runID {
					runID = ev.RunID
					next = 0
				}
				if ev.Index < next {
					continue
				}
				next = ev.Index + 1
				writeLines(w, []string{ev.Line})
				flusher.Flush()
			}
		}
	}
}

func timingToResponse(t simulator.Timing) timingResponse {
	return timingResponse{
		TickIntervalMs: int(t.TickInterval / time.Millisecond),
		TaskDurationMs: int(t.TaskDuration / time.Millisecond),
		MaxConcurrency: t.MaxConcurrency,
		StartsPerTick:  t.StartsPerTick,
		RestartDelayMs: int(t.RestartDelay / time.Millisecond),
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func tailLines(lines []string, tail int) []string {
	if tail <= 0 || tail >= len(lines) {
		return lines
	}
	return lines[len(lines)-tail:]
}

func writeLines(w http.ResponseWriter, lines []string) {
	for _, line := range lines {
		_, _ = w.Write([]byte(line + "\n"))
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/playbook"
	"github.com/aristath/playbooksim/internal/simulator"
)

func newTestServer(t *testing.T, token string) (*Server, *simulator.Simulator) {
	t.Helper()
	pb := playbook.Default()
	// Ticks never fire during a test.
	sim, err := simulator.New(simulator.Config{Timing: simulator.Timing{TickInterval: time.Hour}}, pb.CloneTasks())
	require.NoError(t, err)
	t.Cleanup(sim.Close)

	srv, err := NewServer(ServerConfig{
		AuthToken:  token,
		Controller: sim,
		Playbook:   pb,
	})
	require.NoError(t, err)
	return srv, sim
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(ServerConfig{Playbook: playbook.Default()})
	assert.Error(t, err)

	sim, err := simulator.New(simulator.Config{}, nil)
	require.NoError(t, err)
	defer sim.Close()
	_, err = NewServer(ServerConfig{Controller: sim})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSnapshotAndControl(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := do(t, srv, http.MethodGet, "/v1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	snap := decode[simulator.Snapshot](t, rec)
	assert.False(t, snap.Running)
	assert.Equal(t, 11, snap.Total)
	assert.Equal(t, simulator.StatusPending, snap.Tasks[0].Status)

	snap = decode[simulator.Snapshot](t, do(t, srv, http.MethodPost, "/v1/start", ""))
	assert.True(t, snap.Running)

	snap = decode[simulator.Snapshot](t, do(t, srv, http.MethodPost, "/v1/pause", ""))
	assert.False(t, snap.Running)

	snap = decode[simulator.Snapshot](t, do(t, srv, http.MethodPost, "/v1/reset", ""))
	require.Len(t, snap.Log, 1)
	assert.Contains(t, snap.Log[0], "SYSTEM: Execution state reset.")

	rec = do(t, srv, http.MethodGet, "/v1/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPlaybookRoutes(t *testing.T) {
	srv, _ := newTestServer(t, "")

	pb := decode[playbook.Playbook](t, do(t, srv, http.MethodGet, "/v1/playbook", ""))
	assert.Equal(t, playbook.Default().HighLevelGoal, pb.HighLevelGoal)
	assert.Len(t, pb.Tasks, 11)

	roles := decode[[]playbook.RoleCount](t, do(t, srv, http.MethodGet, "/v1/playbook/roles", ""))
	assert.Equal(t, playbook.Default().TasksByRole(), roles)
}

func TestTaskRoutes(t *testing.T) {
	srv, _ := newTestServer(t, "")

	tests := map[string]struct {
		path    string
		expCode int
		check   func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		"Listing returns every task.": {
			path:    "/v1/tasks",
			expCode: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Len(t, decode[[]simulator.TaskState](t, rec), 11)
			},
		},
		"Listing filters by status.": {
			path:    "/v1/tasks?status=running",
			expCode: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Empty(t, decode[[]simulator.TaskState](t, rec))
			},
		},
		"Unknown status filter is rejected.": {
			path:    "/v1/tasks?status=exploded",
			expCode: http.StatusBadRequest,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "invalid_input", decode[errorBody](t, rec).Error.Code)
			},
		},
		"A task includes its persona and dependents.": {
			path:    "/v1/tasks/T1",
			expCode: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body struct {
					ID         string            `json:"id"`
					Status     string            `json:"status"`
					ElapsedMs  int64             `json:"elapsed_ms"`
					Dependents []string          `json:"dependents"`
					Persona    *playbook.Persona `json:"persona"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "T1", body.ID)
				assert.Equal(t, "pending", body.Status)
				assert.Zero(t, body.ElapsedMs)
				assert.Equal(t, playbook.Default().Dependents("T1"), body.Dependents)
				require.NotNil(t, body.Persona)
				assert.Equal(t, "Atlas", body.Persona.Agent)
			},
		},
		"Unknown task is not found.": {
			path:    "/v1/tasks/T99",
			expCode: http.StatusNotFound,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "not_found", decode[errorBody](t, rec).Error.Code)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, test.path, "")
			assert.Equal(t, test.expCode, rec.Code)
			test.check(t, rec)
		})
	}
}

func TestTimingRoutes(t *testing.T) {
	srv, sim := newTestServer(t, "")

	got := decode[timingResponse](t, do(t, srv, http.MethodGet, "/v1/timing", ""))
	assert.Equal(t, timingResponse{
		TickIntervalMs: 3600000,
		TaskDurationMs: 2000,
		MaxConcurrency: 2,
		StartsPerTick:  1,
		RestartDelayMs: 100,
	}, got)

	rec := do(t, srv, http.MethodPut, "/v1/timing", `{"max_concurrency": 3, "restart_delay_ms": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, sim.Timing().MaxConcurrency)
	assert.Zero(t, sim.Timing().RestartDelay)
	assert.Equal(t, 2*time.Second, sim.Timing().TaskDuration)

	rec = do(t, srv, http.MethodPut, "/v1/timing", `{"tick_interval_ms": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[errorBody](t, rec).Error.Code)
	assert.Equal(t, time.Hour, sim.Timing().TickInterval)

	rec = do(t, srv, http.MethodPut, "/v1/timing", `{"task_duration_ms": 9223372036854}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[errorBody](t, rec).Error.Code)
	assert.Equal(t, 2*time.Second, sim.Timing().TaskDuration)

	rec = do(t, srv, http.MethodPut, "/v1/timing", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[errorBody](t, rec).Error.Code)
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	tests := map[string]struct {
		path    string
		header  string
		expCode int
	}{
		"Missing token is rejected.":      {path: "/v1/snapshot", expCode: http.StatusUnauthorized},
		"Wrong bearer token is rejected.": {path: "/v1/snapshot", header: "Bearer nope", expCode: http.StatusUnauthorized},
		"Bearer token is accepted.":       {path: "/v1/snapshot", header: "Bearer secret", expCode: http.StatusOK},
		"Query token is accepted.":        {path: "/v1/snapshot?token=secret", expCode: http.StatusOK},
		"Health is public.":               {path: "/healthz", expCode: http.StatusOK},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, test.path, nil)
			if test.header != "" {
				req.Header.Set("Authorization", test.header)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, test.expCode, rec.Code)
		})
	}
}

func TestLog(t *testing.T) {
	srv, sim := newTestServer(t, "")
	sim.Reset()
	sim.Reset()

	rec := do(t, srv, http.MethodGet, "/v1/log", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "SYSTEM: Execution state reset.")

	rec = do(t, srv, http.MethodGet, "/v1/log?tail=5", "")
	assert.Equal(t, lines[0]+"\n", rec.Body.String())
}

func TestLogFollow(t *testing.T) {
	srv, sim := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	sim.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/log?follow=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 10)
	go func() {
		r := bufio.NewReader(resp.Body)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSuffix(line, "\n")
		}
	}()

	next := func() string {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed")
			return line
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a log line")
			return ""
		}
	}

	assert.Contains(t, next(), "SYSTEM: Execution state reset.")

	// A new run restarts the log; the follower receives its first line.
	sim.Reset()
	assert.Contains(t, next(), "SYSTEM: Execution state reset.")
}

func TestShutdownEndsLogFollowers(t *testing.T) {
	srv, sim := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	sim.Reset()

	resp, err := http.Get(ts.URL + "/v1/log?follow=true")
	require.NoError(t, err)
	defer resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "SYSTEM: Execution state reset.")
}

// streamController feeds handlers a hand-written event stream.
type streamController struct {
	*simulator.Simulator
	events chan events.Event
}

func (c streamController) Subscribe(int) <-chan events.Event { return c.events }
func (c streamController) Unsubscribe(<-chan events.Event)   {}

func TestLogFollowRecoversFromDroppedReset(t *testing.T) {
	pb := playbook.Default()
	sim, err := simulator.New(simulator.Config{Timing: simulator.Timing{TickInterval: time.Hour}}, pb.CloneTasks())
	require.NoError(t, err)
	t.Cleanup(sim.Close)
	sim.Reset()
	ctrl := streamController{Simulator: sim, events: make(chan events.Event, 10)}

	srv, err := NewServer(ServerConfig{Controller: ctrl, Playbook: pb})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/log?follow=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "SYSTEM: Execution state reset.")

	// The old run's duplicate is skipped, the new run's first line is not.
	oldRun := sim.Snapshot().RunID
	newRun := ulid.Make().String()
	ctrl.events <- events.LogAppendedEvent{RunID: oldRun, Index: 0, Line: "old duplicate"}
	ctrl.events <- events.LogAppendedEvent{RunID: newRun, Index: 0, Line: "new run first"}
	ctrl.events <- events.LogAppendedEvent{RunID: newRun, Index: 1, Line: "new run second"}

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "new run first\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "new run second\n", line)

	require.NoError(t, srv.Shutdown(context.Background()))
}

package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/playbook"
)

const chainPlaybook = `
high_level_goal: Ship it.
tasks:
  - id: A
    role: Builder
    agent: Forge
  - id: B
    role: Reviewer
    agent: Lens
    deps: [A]
`

const cyclePlaybook = `
tasks:
  - id: A
    deps: [B]
  - id: B
    deps: [A]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestRoot(t *testing.T, playbookPath string) (*RootCommand, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	return &RootCommand{
		GlobalConfig:  filepath.Join(dir, "global.json"),
		ProjectConfig: filepath.Join(dir, "project.json"),
		PlaybookPath:  playbookPath,
		TickInterval:  5 * time.Millisecond,
		TaskDuration:  10 * time.Millisecond,
		Stdout:        &out,
		Stderr:        &out,
		Logger:        log.Noop,
	}, &out
}

func TestLoadConfigOverrides(t *testing.T) {
	root, _ := newTestRoot(t, "")
	require.NoError(t, os.WriteFile(root.ProjectConfig, []byte(`{"simulation": {"max_concurrency": 4, "task_duration_ms": 900}}`), 0644))
	root.StartsPerTick = 3

	cfg, err := root.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Simulation.TickIntervalMs)
	assert.Equal(t, 10, cfg.Simulation.TaskDurationMs)
	assert.Equal(t, 4, cfg.Simulation.MaxConcurrency)
	assert.Equal(t, 3, cfg.Simulation.StartsPerTick)
	assert.Equal(t, config.DefaultRestartDelayMs, cfg.Simulation.RestartDelayMs)
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	root, _ := newTestRoot(t, "")
	root.MaxConcurrency = -1

	_, err := root.loadConfig()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewSession(t *testing.T) {
	tests := map[string]struct {
		playbook       string
		skipValidation bool
		expTasks       int
		expErr         error
	}{
		"Without a playbook file the built-in playbook is used.": {
			expTasks: len(playbook.Default().Tasks),
		},
		"A playbook file is loaded.": {
			playbook: chainPlaybook,
			expTasks: 2,
		},
		"A cyclic playbook is rejected.": {
			playbook: cyclePlaybook,
			expErr:   playbook.ErrInvalidGraph,
		},
		"A cyclic playbook loads when validation is skipped.": {
			playbook:       cyclePlaybook,
			skipValidation: true,
			expTasks:       2,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			path := ""
			if test.playbook != "" {
				path = writeFile(t, "playbook.yaml", test.playbook)
			}
			root, _ := newTestRoot(t, path)
			root.SkipValidation = test.skipValidation

			sess, err := root.newSession()
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			defer sess.sim.Close()

			assert.Equal(t, test.expTasks, sess.sim.Snapshot().Total)
			assert.Equal(t, 5*time.Millisecond, sess.sim.Timing().TickInterval)
			assert.Equal(t, 100*time.Millisecond, sess.sim.Timing().RestartDelay)
		})
	}
}

func TestRunPrintsLogUntilCompletion(t *testing.T) {
	root, out := newTestRoot(t, writeFile(t, "playbook.yaml", chainPlaybook))
	cmd := RunCommand{rootCmd: root, format: runFormatText, timeout: 10 * time.Second}

	require.NoError(t, cmd.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "[Forge] EXECUTING A: Builder initiating sequence...")
	assert.Contains(t, lines[1], "[Builder] COMPLETED A in")
	assert.Contains(t, lines[2], "[Lens] EXECUTING B: Reviewer initiating sequence...")
	assert.Contains(t, lines[3], "[Reviewer] COMPLETED B in")
	assert.Equal(t, "2/2 tasks completed (100%)", lines[4])
}

func TestRunJSONEndsWithSnapshot(t *testing.T) {
	root, out := newTestRoot(t, writeFile(t, "playbook.yaml", chainPlaybook))
	cmd := RunCommand{rootCmd: root, format: runFormatJSON, timeout: 10 * time.Second}

	require.NoError(t, cmd.Run(context.Background()))

	var lines []string
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NotEmpty(t, lines)

	var first struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "sim.state", first.Type)

	var last struct {
		Progress  int `json:"progress"`
		Completed int `json:"completed"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, 2, last.Completed)
}

func TestRunTimesOutOnStuckGraph(t *testing.T) {
	root, out := newTestRoot(t, writeFile(t, "playbook.yaml", cyclePlaybook))
	root.SkipValidation = true
	cmd := RunCommand{rootCmd: root, format: runFormatText, timeout: 100 * time.Millisecond}

	err := cmd.Run(context.Background())

	assert.ErrorContains(t, err, "timed out at 0%")
	assert.Equal(t, "0/2 tasks completed (0%)\n", out.String())
}

func TestValidate(t *testing.T) {
	t.Run("A valid graph prints its order.", func(t *testing.T) {
		root, out := newTestRoot(t, writeFile(t, "playbook.yaml", chainPlaybook))

		require.NoError(t, ValidateCommand{rootCmd: root}.Run(context.Background()))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "2 tasks, valid dependency graph", lines[0])
		assert.Contains(t, lines[1], "A ")
		assert.Contains(t, lines[1], "deps=-")
		assert.Contains(t, lines[2], "deps=A")
	})

	t.Run("A cycle is reported.", func(t *testing.T) {
		root, _ := newTestRoot(t, writeFile(t, "playbook.yaml", cyclePlaybook))

		err := ValidateCommand{rootCmd: root}.Run(context.Background())

		var gerr *playbook.GraphError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, playbook.GraphCycle, gerr.Kind)
	})
}

func TestServeStopsOnContextCancel(t *testing.T) {
	root, _ := newTestRoot(t, "")
	cmd := ServeCommand{rootCmd: root, addr: "127.0.0.1:0", autostart: true, shutdownGrace: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- cmd.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

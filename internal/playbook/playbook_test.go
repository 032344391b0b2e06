package playbook_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/playbooksim/internal/playbook"
)

func TestDefaultPlaybook(t *testing.T) {
	pb := playbook.Default()

	require.NotEmpty(t, pb.Tasks)
	assert.NotEmpty(t, pb.HighLevelGoal)

	order, err := playbook.Validate(pb.Tasks)
	require.NoError(t, err)
	assert.Len(t, order, len(pb.Tasks))

	// Every task agent has a persona.
	for _, task := range pb.Tasks {
		_, ok := pb.Persona(task.Agent)
		assert.True(t, ok, "missing persona for agent %q", task.Agent)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]struct {
		data     string
		expErr   bool
		expGraph bool
		expTasks int
		expGoal  string
	}{
		"YAML playbook should be parsed.": {
			data: `
high_level_goal: ship it
tasks:
  - {id: A, description: a, role: R, agent: X, deps: []}
  - {id: B, description: b, role: R, agent: X, deps: [A]}
communication_protocols:
  description: ignored
`,
			expTasks: 2,
			expGoal:  "ship it",
		},
		"JSON playbook should be parsed.": {
			data:     `{"high_level_goal": "json", "tasks": [{"id": "A", "deps": []}]}`,
			expTasks: 1,
			expGoal:  "json",
		},
		"Malformed document should fail.": {
			data:   "tasks: [",
			expErr: true,
		},
		"Empty document should fail.": {
			data:   "",
			expErr: true,
		},
		"Dangling dependency should fail as a graph error.": {
			data:     `{"tasks": [{"id": "A", "deps": ["missing"]}]}`,
			expErr:   true,
			expGraph: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			pb, err := playbook.Parse([]byte(test.data))

			if test.expErr {
				require.Error(t, err)
				assert.Equal(t, test.expGraph, errors.Is(err, playbook.ErrInvalidGraph))
				return
			}

			require.NoError(t, err)
			assert.Len(t, pb.Tasks, test.expTasks)
			assert.Equal(t, test.expGoal, pb.HighLevelGoal)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - id: A\n"), 0644))

	pb, err := playbook.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, pb.Tasks, 1)

	_, err = playbook.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestReadFileSkipsGraphChecks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cycle.yaml")
	doc := "tasks:\n  - id: A\n    deps: [B]\n  - id: B\n    deps: [A]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := playbook.LoadFile(path)
	assert.ErrorIs(t, err, playbook.ErrInvalidGraph)

	pb, err := playbook.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, pb.Tasks, 2)
}

func TestPlaybookQueries(t *testing.T) {
	pb := &playbook.Playbook{
		Roles: []playbook.Role{
			{Title: "Architect"},
			{Title: "Engineer"},
			{Title: "Idle"},
		},
		Tasks: []playbook.Task{
			{ID: "A", Role: "Engineer"},
			{ID: "B", Role: "Architect", Deps: []string{"A"}},
			{ID: "C", Role: "Engineer", Deps: []string{"A", "B"}},
			{ID: "D", Role: "Ghost"},
		},
	}

	assert.Equal(t, []playbook.RoleCount{
		{Role: "Architect", Count: 1},
		{Role: "Engineer", Count: 2},
		{Role: "Ghost", Count: 1},
	}, pb.TasksByRole())

	assert.Equal(t, []string{"B", "C"}, pb.Dependents("A"))
	assert.Empty(t, pb.Dependents("C"))

	task, ok := pb.Task("C")
	require.True(t, ok)
	task.Deps[0] = "mutated"
	assert.Equal(t, "A", pb.Tasks[2].Deps[0], "Task must return a copy")

	_, ok = pb.Task("missing")
	assert.False(t, ok)

	tasks := pb.CloneTasks()
	tasks[1].Deps[0] = "mutated"
	assert.Equal(t, "A", pb.Tasks[1].Deps[0], "CloneTasks must deep copy")
}

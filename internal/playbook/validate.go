package playbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

// ErrInvalidGraph is the configuration error kind for a task list whose
// dependency graph can never complete.
var ErrInvalidGraph = errors.New("invalid task dependency graph")

// GraphErrorKind classifies a dependency graph defect.
type GraphErrorKind string

const (
	GraphEmptyID   GraphErrorKind = "empty-id"
	GraphDuplicate GraphErrorKind = "duplicate"
	GraphDangling  GraphErrorKind = "dangling"
	GraphCycle     GraphErrorKind = "cycle"
)

// GraphError reports the offending task, dependency or cycle.
type GraphError struct {
	Kind   GraphErrorKind
	TaskID string   // Task carrying the defect (duplicate, dangling)
	Dep    string   // Missing dependency (dangling)
	Index  int      // Position in the task list (empty-id, duplicate)
	Cycle  []string // Cycle path, first element repeated at the end
}

func (e *GraphError) Error() string {
	switch e.Kind {
	case GraphEmptyID:
		return fmt.Sprintf("task at position %d has an empty id", e.Index)
	case GraphDuplicate:
		return fmt.Sprintf("task with ID %q already exists (position %d)", e.TaskID, e.Index)
	case GraphDangling:
		return fmt.Sprintf("task %q depends on non-existent task %q", e.TaskID, e.Dep)
	case GraphCycle:
		if len(e.Cycle) == 0 {
			return "dependency cycle detected"
		}
		return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
	}
	return string(e.Kind)
}

func (e *GraphError) Unwrap() error { return ErrInvalidGraph }

// Validate checks that every dependency exists and the graph is acyclic.
// Returns the task IDs in a topological order.
func Validate(tasks []Task) ([]string, error) {
	ids := make(map[string]bool, len(tasks))
	for i, task := range tasks {
		if task.ID == "" {
			return nil, &GraphError{Kind: GraphEmptyID, Index: i}
		}
		if ids[task.ID] {
			return nil, &GraphError{Kind: GraphDuplicate, TaskID: task.ID, Index: i}
		}
		ids[task.ID] = true
	}

	for _, task := range tasks {
		for _, depID := range task.Deps {
			if !ids[depID] {
				return nil, &GraphError{Kind: GraphDangling, TaskID: task.ID, Dep: depID}
			}
		}
	}

	var edges []toposort.Edge
	for _, task := range tasks {
		if len(task.Deps) == 0 {
			// Edge from nil keeps dependency-free tasks in the output.
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}
		for _, depID := range task.Deps {
			edges = append(edges, toposort.Edge{depID, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &GraphError{Kind: GraphCycle, Cycle: detectCycle(tasks)}
	}

	order := make([]string, 0, len(tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(tasks) {
		// Only reachable through a cycle with no entry point.
		return nil, &GraphError{Kind: GraphCycle, Cycle: detectCycle(tasks)}
	}

	return order, nil
}

// detectCycle returns the first cycle found walking tasks in list order.
// DFS coloring: white (unvisited), gray (on stack), black (done).
func detectCycle(tasks []Task) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	deps := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		deps[task.ID] = task.Deps
	}

	color := make(map[string]int, len(tasks))
	var stack []string

	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range deps[id] {
			switch color[next] {
			case gray:
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				return append(cycle, next)
			case white:
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, task := range tasks {
		if color[task.ID] == white {
			if cycle := dfs(task.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

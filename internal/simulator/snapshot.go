package simulator

import (
	"time"
)

// TaskState is a task together with its run state.
type TaskState struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Role        string     `json:"role"`
	Agent       string     `json:"agent"`
	Deps        []string   `json:"deps"`
	Status      Status     `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// Elapsed returns how long the task has been running at now, or its total
// run time once completed. Zero when the task never started.
func (t TaskState) Elapsed(now time.Time) time.Duration {
	switch {
	case t.StartTime == nil:
		return 0
	case t.EndTime != nil:
		return t.EndTime.Sub(*t.StartTime)
	default:
		return now.Sub(*t.StartTime)
	}
}

// Snapshot is a consistent copy of the simulator state. Callers may keep
// and modify it freely.
type Snapshot struct {
	RunID     string      `json:"run_id"`
	Running   bool        `json:"running"`
	Progress  int         `json:"progress"`
	Tasks     []TaskState `json:"tasks"`
	Log       []string    `json:"log"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Active    int         `json:"active"`
	Ready     int         `json:"ready"`
	Pending   int         `json:"pending"`
}

// Task returns the state of the task with the given ID.
func (s Snapshot) Task(id string) (TaskState, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskState{}, false
}

// Snapshot returns a copy of the current state.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		RunID:    s.runID,
		Running:  s.running,
		Progress: s.progress,
		Tasks:    make([]TaskState, len(s.runs)),
		Log:      append([]string{}, s.lines...),
		Total:    len(s.runs),
	}

	for i, r := range s.runs {
		ts := TaskState{
			ID:          r.task.ID,
			Description: r.task.Description,
			Role:        r.task.Role,
			Agent:       r.task.Agent,
			Deps:        append([]string{}, r.task.Deps...),
			Status:      r.status,
		}
		if !r.start.IsZero() {
			start := r.start
			ts.StartTime = &start
		}
		if !r.end.IsZero() {
			end := r.end
			ts.EndTime = &end
		}
		snap.Tasks[i] = ts

		switch r.status {
		case StatusCompleted:
			snap.Completed++
		case StatusRunning:
			snap.Active++
		case StatusReady:
			snap.Ready++
		default:
			snap.Pending++
		}
	}

	return snap
}

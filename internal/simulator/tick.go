package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/playbook"
)

const timeLayout = "15:04:05"

// tick runs one scheduling pass at now and reports whether every task is
// completed. Must be called with s.mu held.
//
// The pass has three phases, each seeing the effects of the previous one:
// promote pending tasks whose dependencies are all completed, complete
// running tasks older than the task duration, then start ready tasks in list
// order while slots and the per-tick start budget remain.
func (s *Simulator) tick(now time.Time) bool {
	for i := range s.runs {
		r := &s.runs[i]
		if r.status != StatusPending || !s.depsCompletedLocked(r.task) {
			continue
		}
		r.status = StatusReady
		s.bus.Publish(events.TopicTask, events.TaskReadyEvent{ID: r.task.ID, Timestamp: now})
	}

	for i := range s.runs {
		r := &s.runs[i]
		if r.status != StatusRunning || now.Sub(r.start) <= s.timing.TaskDuration {
			continue
		}
		r.status = StatusCompleted
		r.end = now
		took := r.end.Sub(r.start)

		s.appendLog(r.task.ID, formatLine(now, fmt.Sprintf("[%s] COMPLETED %s in %.1fs", r.task.Role, r.task.ID, took.Seconds())), now)
		s.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        r.task.ID,
			Role:      r.task.Role,
			Duration:  took,
			Timestamp: now,
		})
		s.logger.WithValues(log.Kv{"task": r.task.ID, "took": took}).Debugf("task completed")
	}

	running := s.countLocked(StatusRunning)
	started := 0
	for i := range s.runs {
		if running >= s.timing.MaxConcurrency || started >= s.timing.StartsPerTick {
			break
		}
		r := &s.runs[i]
		if r.status != StatusReady {
			continue
		}
		r.status = StatusRunning
		r.start = now
		running++
		started++

		s.appendLog(r.task.ID, formatLine(now, fmt.Sprintf("[%s] EXECUTING %s: %s initiating sequence...", r.task.Agent, r.task.ID, r.task.Role)), now)
		s.bus.Publish(events.TopicTask, events.TaskStartedEvent{
			ID:        r.task.ID,
			Role:      r.task.Role,
			Agent:     r.task.Agent,
			Timestamp: now,
		})
		s.logger.WithValues(log.Kv{"task": r.task.ID, "agent": r.task.Agent}).Debugf("task started")
	}

	completed := s.countLocked(StatusCompleted)
	s.progress = percent(completed, len(s.runs))
	s.publishProgress(now)

	return completed == len(s.runs)
}

// depsCompletedLocked reports whether every dependency of t is completed.
// Unknown dependencies are never satisfied.
func (s *Simulator) depsCompletedLocked(t playbook.Task) bool {
	for _, dep := range t.Deps {
		idx, ok := s.index[dep]
		if !ok || s.runs[idx].status != StatusCompleted {
			return false
		}
	}
	return true
}

func (s *Simulator) countLocked(status Status) int {
	n := 0
	for i := range s.runs {
		if s.runs[i].status == status {
			n++
		}
	}
	return n
}

func (s *Simulator) appendLog(taskID, line string, now time.Time) {
	s.lines = append(s.lines, line)
	s.bus.Publish(events.TopicLog, events.LogAppendedEvent{
		ID:        taskID,
		RunID:     s.runID,
		Line:      line,
		Index:     len(s.lines) - 1,
		Timestamp: now,
	})
}

func (s *Simulator) publishProgress(now time.Time) {
	s.bus.Publish(events.TopicSim, events.ProgressEvent{
		Total:     len(s.runs),
		Completed: s.countLocked(StatusCompleted),
		Running:   s.countLocked(StatusRunning),
		Ready:     s.countLocked(StatusReady),
		Pending:   s.countLocked(StatusPending),
		Percent:   s.progress,
		Timestamp: now,
	})
}

func formatLine(now time.Time, msg string) string {
	return "[" + now.Format(timeLayout) + "] " + msg
}

// percent returns round(100*completed/total), or 0 for an empty list.
func percent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

package events

import (
	"time"
)

// Event is the base interface for all simulator events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicSim  = "sim"
	TopicLog  = "log"
)

// Event type constants
const (
	EventTypeTaskReady     = "task.ready"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskCompleted = "task.completed"
	EventTypeLogAppended   = "log.appended"
	EventTypeProgress      = "sim.progress"
	EventTypeSimState      = "sim.state"
)

// SimState is the lifecycle transition reported by SimulationStateEvent.
type SimState string

const (
	SimStarted SimState = "started"
	SimPaused  SimState = "paused"
	SimHalted  SimState = "halted"
	SimReset   SimState = "reset"
)

// TaskReadyEvent is published when a pending task has all dependencies completed.
type TaskReadyEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskReadyEvent) EventType() string { return EventTypeTaskReady }
func (e TaskReadyEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a ready task is granted a concurrency slot.
type TaskStartedEvent struct {
	ID        string
	Role      string
	Agent     string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a running task exceeds the simulated duration.
type TaskCompletedEvent struct {
	ID        string
	Role      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// LogAppendedEvent carries a line appended to the simulation log.
type LogAppendedEvent struct {
	ID        string // Related task, empty for system lines
	RunID     string
	Line      string
	Index     int // Position of Line in the log; restarts at 0 after a reset
	Timestamp time.Time
}

func (e LogAppendedEvent) EventType() string { return EventTypeLogAppended }
func (e LogAppendedEvent) TaskID() string    { return e.ID }

// ProgressEvent is published after every tick.
type ProgressEvent struct {
	Total     int
	Completed int
	Running   int
	Ready     int
	Pending   int
	Percent   int
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

// SimulationStateEvent is published when the simulator starts, pauses, halts or resets.
type SimulationStateEvent struct {
	RunID     string
	State     SimState
	Timestamp time.Time
}

func (e SimulationStateEvent) EventType() string { return EventTypeSimState }
func (e SimulationStateEvent) TaskID() string    { return "" }

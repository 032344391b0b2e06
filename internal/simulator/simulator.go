// Package simulator runs a playbook's task list through a timed state
// machine. Tasks never do real work: each one holds a concurrency slot for a
// fixed wall-clock duration and then completes.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/playbook"
)

type taskRun struct {
	task   playbook.Task
	status Status
	start  time.Time
	end    time.Time
}

// Simulator owns the run state of one task list. All methods are safe for
// concurrent use.
type Simulator struct {
	mu      sync.Mutex
	timing  Timing
	now     func() time.Time
	logger  log.Logger
	bus     *events.EventBus
	ownsBus bool

	runs     []taskRun
	index    map[string]int
	lines    []string
	progress int
	runID    string

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// New returns a paused simulator with every task pending. Unless
// cfg.SkipValidation is set, the dependency graph must be acyclic with no
// dangling references; otherwise the returned error wraps
// playbook.ErrInvalidGraph.
func New(cfg Config, tasks []playbook.Task) (*Simulator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if !cfg.SkipValidation {
		if _, err := playbook.Validate(tasks); err != nil {
			return nil, fmt.Errorf("invalid task list: %w", err)
		}
	}

	s := &Simulator{
		timing: cfg.Timing,
		now:    cfg.Now,
		logger: cfg.Logger,
		bus:    cfg.Bus,
		runs:   make([]taskRun, len(tasks)),
		index:  make(map[string]int, len(tasks)),
		runID:  ulid.Make().String(),
	}
	if s.bus == nil {
		s.bus = events.NewEventBus()
		s.ownsBus = true
	}

	for i, t := range tasks {
		s.runs[i] = taskRun{task: t.Clone(), status: StatusPending}
		// First occurrence wins for duplicate IDs.
		if _, ok := s.index[t.ID]; !ok {
			s.index[t.ID] = i
		}
	}

	s.logger.WithValues(log.Kv{"run-id": s.runID, "tasks": len(tasks)}).Debugf("simulator created")

	return s, nil
}

// Bus returns the event bus the simulator publishes on.
func (s *Simulator) Bus() *events.EventBus {
	return s.bus
}

// Subscribe returns a channel receiving every simulator event.
// bufSize defaults to 256 if <= 0.
func (s *Simulator) Subscribe(bufSize int) <-chan events.Event {
	return s.bus.SubscribeAll(bufSize)
}

// Unsubscribe removes a subscription returned by Subscribe.
func (s *Simulator) Unsubscribe(sub <-chan events.Event) {
	s.bus.Unsubscribe(sub)
}

// Timing returns the active timing.
func (s *Simulator) Timing() Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timing
}

// Configure replaces the timing. Task duration, concurrency and starts per
// tick apply from the next tick; tick interval and restart delay apply from
// the next Start. A concurrency cap below the number of running tasks is
// rejected.
func (s *Simulator) Configure(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if running := s.countLocked(StatusRunning); t.MaxConcurrency < running {
		return fmt.Errorf("max concurrency %d is below the %d running tasks: %w", t.MaxConcurrency, running, config.ErrInvalid)
	}

	s.timing = t
	s.logger.WithValues(log.Kv{
		"tick-interval":   t.TickInterval,
		"task-duration":   t.TaskDuration,
		"max-concurrency": t.MaxConcurrency,
		"starts-per-tick": t.StartsPerTick,
	}).Infof("timing updated")
	return nil
}

// Close stops the tick loop and, when the simulator created its own bus,
// closes it. Further Start calls are ignored.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var done chan struct{}
	if s.running {
		done = s.stopLocked()
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	if s.ownsBus {
		s.bus.Close()
	}
}

package simulator

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
)

const resetLine = "SYSTEM: Execution state reset."

// Start begins ticking. It is a no-op while already running. When every
// task is already completed the run is reset first and the first tick is
// delayed by the restart delay.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.running {
		return
	}

	var delay time.Duration
	if len(s.runs) > 0 && s.countLocked(StatusCompleted) == len(s.runs) {
		s.resetLocked()
		delay = s.timing.RestartDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, delay, s.timing.TickInterval, s.done)

	s.logger.WithValues(log.Kv{"run-id": s.runID}).Infof("simulation started")
	s.publishState(events.SimStarted)
}

// Pause stops ticking. Task states and start times are kept, so running
// tasks keep aging while paused. Pause returns once the tick loop has exited.
func (s *Simulator) Pause() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	done := s.stopLocked()
	s.logger.WithValues(log.Kv{"run-id": s.runID}).Infof("simulation paused")
	s.publishState(events.SimPaused)
	s.mu.Unlock()

	<-done
}

// Reset stops ticking and returns every task to pending. The log is
// replaced by a single reset line and a new run ID is assigned.
func (s *Simulator) Reset() {
	s.mu.Lock()
	var done chan struct{}
	if s.running {
		done = s.stopLocked()
	}
	s.resetLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// stopLocked cancels the tick loop and returns its done channel.
// Must be called with s.mu held and s.running true.
func (s *Simulator) stopLocked() chan struct{} {
	s.running = false
	s.cancel()
	s.cancel = nil
	done := s.done
	s.done = nil
	return done
}

// resetLocked must be called with s.mu held.
func (s *Simulator) resetLocked() {
	now := s.now()

	for i := range s.runs {
		s.runs[i].status = StatusPending
		s.runs[i].start = time.Time{}
		s.runs[i].end = time.Time{}
	}
	s.lines = nil
	s.progress = 0
	s.runID = ulid.Make().String()

	s.logger.WithValues(log.Kv{"run-id": s.runID}).Infof("simulation reset")
	s.publishState(events.SimReset)
	s.appendLog("", formatLine(now, resetLine), now)
	s.publishProgress(now)
}

func (s *Simulator) loop(ctx context.Context, delay, interval time.Duration, done chan struct{}) {
	defer close(done)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop := s.tickOnce(ctx); stop {
				return
			}
		}
	}
}

// tickOnce runs one scheduling pass for the loop owning ctx. It returns true
// when the loop must exit.
func (s *Simulator) tickOnce(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Pause or Reset won the lock first.
	if ctx.Err() != nil {
		return true
	}

	if halted := s.tick(s.now()); !halted {
		return false
	}

	s.running = false
	s.cancel()
	s.cancel = nil
	s.done = nil

	s.logger.WithValues(log.Kv{"run-id": s.runID}).Infof("all tasks completed, simulation halted")
	s.publishState(events.SimHalted)
	return true
}

func (s *Simulator) publishState(state events.SimState) {
	s.bus.Publish(events.TopicSim, events.SimulationStateEvent{
		RunID:     s.runID,
		State:     state,
		Timestamp: s.now(),
	})
}

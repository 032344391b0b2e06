package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/simulator"
)

const (
	runFormatText = "text"
	runFormatJSON = "json"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format  string
	timeout time.Duration
}

// NewRunCommand returns the headless run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run the playbook to completion without the dashboard, printing the execution log.")
	c.Cmd.Flag("format", "Output format (text, json).").Default(runFormatText).EnumVar(&c.format, runFormatText, runFormatJSON)
	c.Cmd.Flag("timeout", "Stop the run after this long, 0 waits for completion.").DurationVar(&c.timeout)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	sess, err := c.rootCmd.newSession()
	if err != nil {
		return err
	}
	defer sess.sim.Close()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := newRunPrinter(c.format, c.rootCmd.Stdout)
	logger := c.rootCmd.logger()

	// Subscribe first so the first tick is not missed.
	sub := sess.sim.Subscribe(1024)
	sess.sim.Start()

	for {
		select {
		case <-ctx.Done():
			sess.sim.Pause()
			snap := sess.sim.Snapshot()
			if err := out.flush(snap); err != nil {
				return err
			}
			logger.WithValues(log.Kv{"progress": snap.Progress}).Warningf("run stopped before completion")
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("run timed out at %d%% after %s", snap.Progress, c.timeout)
			}
			return nil

		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if err := out.event(ev); err != nil {
				return err
			}

			if st, ok := ev.(events.SimulationStateEvent); ok && st.State == events.SimHalted {
				snap := sess.sim.Snapshot()
				if err := out.flush(snap); err != nil {
					return err
				}
				logger.WithValues(log.Kv{"run-id": snap.RunID, "tasks": snap.Total}).Infof("run completed")
				return nil
			}
		}
	}
}

// runPrinter writes run output. Log lines are tracked by index so lines
// dropped by a slow subscription are recovered from the final snapshot.
type runPrinter struct {
	format string
	w      io.Writer
	enc    *json.Encoder
	next   int
}

func newRunPrinter(format string, w io.Writer) *runPrinter {
	return &runPrinter{format: format, w: w, enc: json.NewEncoder(w)}
}

type jsonEvent struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

func (p *runPrinter) event(ev events.Event) error {
	if p.format == runFormatJSON {
		if err := p.enc.Encode(jsonEvent{Type: ev.EventType(), Event: ev}); err != nil {
			return fmt.Errorf("could not print event: %w", err)
		}
		return nil
	}

	le, ok := ev.(events.LogAppendedEvent)
	if !ok || le.Index < p.next {
		return nil
	}
	p.next = le.Index + 1
	_, err := fmt.Fprintln(p.w, le.Line)
	return err
}

func (p *runPrinter) flush(snap simulator.Snapshot) error {
	if p.format == runFormatJSON {
		if err := p.enc.Encode(snap); err != nil {
			return fmt.Errorf("could not print snapshot: %w", err)
		}
		return nil
	}

	for ; p.next < len(snap.Log); p.next++ {
		if _, err := fmt.Fprintln(p.w, snap.Log[p.next]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(p.w, "%d/%d tasks completed (%d%%)\n", snap.Completed, snap.Total, snap.Progress)
	return err
}

package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/simulator"
	"github.com/aristath/playbooksim/internal/tui"
)

type TUICommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	autostart bool
}

// NewTUICommand returns the interactive dashboard command.
func NewTUICommand(rootCmd *RootCommand, app *kingpin.Application) *TUICommand {
	c := &TUICommand{rootCmd: rootCmd}

	c.Cmd = app.Command("tui", "Run the interactive execution dashboard.").Default()
	c.Cmd.Flag("autostart", "Start the simulation when the dashboard opens.").BoolVar(&c.autostart)

	return c
}

func (c TUICommand) Name() string { return c.Cmd.FullCommand() }

func (c TUICommand) Run(ctx context.Context) error {
	sess, err := c.rootCmd.newSession()
	if err != nil {
		return err
	}
	defer sess.sim.Close()

	sim := sess.sim
	model := tui.New(sim, sim.Subscribe(256), tui.Options{
		Playbook: sess.playbook,
		Config:   sess.cfg,
		Apply: func(sc config.SimulationConfig) error {
			return sim.Configure(simulator.TimingFromConfig(sc))
		},
		GlobalPath:  c.rootCmd.GlobalConfig,
		ProjectPath: c.rootCmd.ProjectConfig,
	})

	if c.autostart {
		sim.Start()
	}

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithInput(c.rootCmd.Stdin),
		tea.WithOutput(c.rootCmd.Stdout),
		tea.WithoutSignalHandler(),
	)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("could not run dashboard: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			c.rootCmd.logger().Debugf("stopping dashboard")
			p.Quit()
		case <-done:
		}
		return nil
	})

	return g.Wait()
}

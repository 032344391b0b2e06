package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/playbooksim/internal/playbook"
)

type ValidateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewValidateCommand returns the playbook validation command.
func NewValidateCommand(rootCmd *RootCommand, app *kingpin.Application) *ValidateCommand {
	c := &ValidateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("validate", "Check the playbook dependency graph and print a valid execution order.")

	return c
}

func (c ValidateCommand) Name() string { return c.Cmd.FullCommand() }

func (c ValidateCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.loadConfig()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pb := playbook.Default()
	if cfg.Playbook != "" {
		pb, err = playbook.ReadFile(cfg.Playbook)
		if err != nil {
			return err
		}
	}

	order, err := playbook.Validate(pb.Tasks)
	if err != nil {
		var gerr *playbook.GraphError
		if errors.As(err, &gerr) {
			c.rootCmd.logger().Errorf("graph check failed: %s", gerr.Kind)
		}
		return err
	}

	fmt.Fprintf(c.rootCmd.Stdout, "%d tasks, valid dependency graph\n", len(order))
	for i, id := range order {
		t, _ := pb.Task(id)
		deps := "-"
		if len(t.Deps) > 0 {
			deps = strings.Join(t.Deps, ",")
		}
		fmt.Fprintf(c.rootCmd.Stdout, "%3d  %-8s %-12s deps=%s\n", i+1, id, t.Role, deps)
	}

	return nil
}

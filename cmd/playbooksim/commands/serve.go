package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/aristath/playbooksim/internal/api"
	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/log"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	addr          string
	authToken     string
	autostart     bool
	shutdownGrace time.Duration
}

// NewServeCommand returns the HTTP API command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the simulation over an HTTP JSON API.")
	c.Cmd.Flag("addr", "Listen address, overrides the configured one.").Envar(config.EnvServerAddr).StringVar(&c.addr)
	c.Cmd.Flag("token", "Bearer token required on /v1 routes, overrides the configured one.").Envar(config.EnvAuthToken).StringVar(&c.authToken)
	c.Cmd.Flag("autostart", "Start the simulation as soon as the server is up.").BoolVar(&c.autostart)
	c.Cmd.Flag("shutdown-grace", "Time allowed for in-flight requests on shutdown.").Default("5s").DurationVar(&c.shutdownGrace)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	sess, err := c.rootCmd.newSession()
	if err != nil {
		return err
	}
	defer sess.sim.Close()

	addr := sess.cfg.Server.Addr
	if c.addr != "" {
		addr = c.addr
	}
	token := sess.cfg.Server.AuthToken
	if c.authToken != "" {
		token = c.authToken
	}

	logger := c.rootCmd.logger().WithValues(log.Kv{"addr": addr})
	if token == "" {
		logger.Warningf("API authentication is disabled")
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:       addr,
		AuthToken:  token,
		Controller: sess.sim,
		Playbook:   sess.playbook,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API server: %w", err)
	}

	var g run.Group

	// HTTP server.
	{
		g.Add(
			func() error {
				if c.autostart {
					sess.sim.Start()
				}
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownGrace)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("graceful shutdown failed: %s", err)
				}
			},
		)
	}

	// Context cancellation (from parent signal handling).
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

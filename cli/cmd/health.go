package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stratum/cli/render"
)

// healthTimeout bounds the dependency probes.
const healthTimeout = 15 * time.Second

// HealthCommand returns the health command. It probes the queue store, the
// object store, the warehouse client and the backup pressure signal, and
// exits non-zero when any check fails.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Probe pipeline dependencies and report health",
		Flags:  ReadOnlyFlags(),
		Action: healthAction,
	}
}

func healthAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for health command", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	rs, err := buildRuntime(ctx, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("pipeline setup failed: %v", err), 1)
	}
	defer rs.Close()

	health := rs.orch.Health(ctx)

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := r.Render(health); err != nil {
		return err
	}

	if !health.OK {
		return cli.Exit("", 1)
	}
	return nil
}

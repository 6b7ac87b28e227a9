package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stratum/cli/render"
)

// statsTimeout bounds the queue depth probes.
const statsTimeout = 10 * time.Second

// StatsCommand returns the stats command: aggregated queue depths and
// durable-store status counts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show pipeline statistics (queue depths, backup and recovery state)",
		Flags:  TUIReadOnlyFlags(),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	queues, err := buildQueue(cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = queues.Close() }()

	reader, err := newStateReader(cfg, queues)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	stats, err := reader.Stats(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("collect stats: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_pipeline", stats)
	}
	return r.Render(stats)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stratum/cli/render"
	"github.com/pithecene-io/stratum/schedule"
)

// Run exit codes.
const (
	exitSuccess     = 0
	exitTickFailed  = 1
	exitTickSkipped = 2
)

// RunCommand returns the run command: the only command that executes work.
// Default mode schedules ticks until a termination signal; --once runs a
// single tick and exits non-zero on failure.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the ingestion pipeline (scheduler, or --once for a single tick)",
		Flags: []cli.Flag{
			ConfigFlag,
			FormatFlag,
			NoColorFlag,
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run exactly one tick and exit (non-zero on failure)",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitTickFailed)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	rs, err := buildRuntime(ctx, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("pipeline setup failed: %v", err), exitTickFailed)
	}
	defer rs.Close()

	if c.Bool("once") {
		return runOnce(ctx, c, rs)
	}

	// Scheduler mode: blocks until a termination signal, then drains the
	// in-flight tick. In-flight warehouse jobs are not aborted; the
	// recovery registry resumes them on the next start.
	rs.sched.Run(ctx)
	return nil
}

// runOnce executes a single locked tick and maps its outcome to an exit
// code: 0 healthy, 1 failed, 2 skipped because another instance holds the
// lock.
func runOnce(ctx context.Context, c *cli.Context, rs *runtimeSet) error {
	result, err := rs.sched.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, schedule.ErrTickSkipped) {
			return cli.Exit(err.Error(), exitTickSkipped)
		}
		return cli.Exit(err.Error(), exitTickFailed)
	}

	r, rerr := render.NewRenderer(c)
	if rerr != nil {
		return rerr
	}
	if rerr := r.Render(result); rerr != nil {
		return rerr
	}

	if !result.OK() {
		return cli.Exit("", exitTickFailed)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stratum/cli/render"
)

// listWarningThreshold is the number of items above which we warn about
// narrowing with --status.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands. List returns thin
// slices; inspect holds the per-entry detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List durable pipeline state (backups, recovery)",
		Subcommands: []*cli.Command{
			listBackupsCommand(),
			listRecoveryCommand(),
		},
	}
}

func listBackupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "backups",
		Usage: "List local backup entries",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: pending, processing, completed, failed",
			},
		),
		Action: listBackupsAction,
	}
}

func listBackupsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	reader, err := newStateReader(cfg, nil)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	entries, err := reader.Backups()
	if err != nil {
		return cli.Exit(fmt.Sprintf("list backups: %v", err), 1)
	}
	if status := c.String("status"); status != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Status == status {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if len(entries) > listWarningThreshold && c.String("status") == "" && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --status to reduce output.\n\n", len(entries))
	}

	return r.Render(entries)
}

func listRecoveryCommand() *cli.Command {
	return &cli.Command{
		Name:  "recovery",
		Usage: "List recovery registry entries",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: pending, processing, completed, failed",
			},
		),
		Action: listRecoveryAction,
	}
}

func listRecoveryAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	reader, err := newStateReader(cfg, nil)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	entries, err := reader.Recovery()
	if err != nil {
		return cli.Exit(fmt.Sprintf("list recovery: %v", err), 1)
	}
	if status := c.String("status"); status != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Status == status {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return r.Render(entries)
}

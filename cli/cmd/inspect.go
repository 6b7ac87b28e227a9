package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stratum/cli/render"
)

// InspectCommand returns the inspect command with subcommands. Inspect
// returns a deep view of a single durable entry.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single entry (backup, recovery)",
		Subcommands: []*cli.Command{
			inspectBackupCommand(),
			inspectRecoveryCommand(),
		},
	}
}

func inspectBackupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "Inspect a local backup entry by ID",
		ArgsUsage: "<backup-id>",
		Flags:     TUIReadOnlyFlags(),
		Action:    inspectBackupAction,
	}
}

func inspectBackupAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("backup-id required", 1)
	}
	id := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
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
		return cli.Exit(fmt.Sprintf("read backups: %v", err), 1)
	}
	for i := range entries {
		if entries[i].ID == id {
			if c.Bool("tui") {
				return r.RenderTUI("inspect_backup", &entries[i])
			}
			return r.Render(&entries[i])
		}
	}
	return cli.Exit(fmt.Sprintf("backup not found: %s", id), 1)
}

func inspectRecoveryCommand() *cli.Command {
	return &cli.Command{
		Name:      "recovery",
		Usage:     "Inspect a recovery registry entry by ID",
		ArgsUsage: "<entry-id>",
		Flags:     TUIReadOnlyFlags(),
		Action:    inspectRecoveryAction,
	}
}

func inspectRecoveryAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("entry-id required", 1)
	}
	id := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
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
		return cli.Exit(fmt.Sprintf("read recovery registry: %v", err), 1)
	}
	for i := range entries {
		if entries[i].ID == id {
			if c.Bool("tui") {
				return r.RenderTUI("inspect_recovery", &entries[i])
			}
			return r.Render(&entries[i])
		}
	}
	return cli.Exit(fmt.Sprintf("recovery entry not found: %s", id), 1)
}

package cmd

import "github.com/urfave/cli/v2"

// Commands returns the full stratum command set. The run command is the
// only one that executes work; everything else is read-only.
func Commands(commit string) []*cli.Command {
	return []*cli.Command{
		RunCommand(),
		HealthCommand(),
		ListCommand(),
		InspectCommand(),
		StatsCommand(),
		VersionCommand(commit),
	}
}

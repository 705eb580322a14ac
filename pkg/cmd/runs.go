package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/history"
)

// RunsCommand is the specification of the `runs` command.
var RunsCommand = cli.Command{
	Name:   "runs",
	Usage:  "list the outcomes of past scenario runs",
	Action: runsCommand,
}

func runsCommand(c *cli.Context) error {
	cfg := &config.Config{}
	if err := cfg.Load(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	store, err := history.Open(cfg.Dirs().Records())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer store.Close()

	records, err := store.List()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	for _, r := range records {
		line := fmt.Sprintf("%s  %-12s %-6s %s", r.Started.Format("2006-01-02 15:04:05"), r.Scenario, r.Outcome, r.ID)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

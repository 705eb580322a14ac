package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/proc"
)

// CacheCommand manages the pre-mined chain cache that seeds node
// datadirs at boot.
var CacheCommand = cli.Command{
	Name:  "cache",
	Usage: "manage the pre-mined chain cache",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:   "warm",
			Usage:  "mine the starting chain once and cache the datadirs",
			Action: cacheWarmCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "nodes",
					Aliases: []string{"n"},
					Usage:   "number of nodes in the cached cluster",
				},
				&cli.StringFlag{
					Name:  "node-binary",
					Usage: "node executable to start for every node",
				},
			},
		},
		&cli.Command{
			Name:   "drop",
			Usage:  "remove the cached datadirs",
			Action: cacheDropCommand,
		},
	},
}

func cacheWarmCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := cluster.WarmCache(context.Background(), cfg, &proc.LocalController{}, cfg.Nodes); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func cacheDropCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := cluster.DropCache(cfg); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

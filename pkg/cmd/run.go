package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/conv"
	"github.com/chainharness/chainharness/pkg/history"
	"github.com/chainharness/chainharness/pkg/proc"
	"github.com/chainharness/chainharness/pkg/scenario"
)

// RunCommand is the specification of the `run` command.
var RunCommand = cli.Command{
	Name:      "run",
	Usage:     "run a scenario against a cluster of node processes",
	ArgsUsage: "[scenario]",
	Action:    runCommand,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "nodes",
			Aliases: []string{"n"},
			Usage:   "number of nodes in the cluster",
		},
		&cli.StringFlag{
			Name:  "node-binary",
			Usage: "node executable to start for every node",
		},
		&cli.StringFlag{
			Name:  "candidate",
			Usage: "binary under test for differential scenarios (node 0)",
		},
		&cli.StringFlag{
			Name:  "reference",
			Usage: "reference binary for differential scenarios (nodes >= 1)",
		},
		&cli.BoolFlag{
			Name:  "nocleanup",
			Usage: "leave node workdirs behind on exit or error",
		},
		&cli.BoolFlag{
			Name:  "noshutdown",
			Usage: "don't stop node processes after the run",
		},
		&cli.BoolFlag{
			Name:  "tracerpc",
			Usage: "log every remote call as it is made",
		},
		&cli.BoolFlag{
			Name:  "collect",
			Usage: "archive node workdirs to <run_id>.tgz when the run fails",
		},
		&cli.StringSliceFlag{
			Name:    "param",
			Aliases: []string{"p"},
			Usage:   "scenario parameter override, `KEY=VALUE`",
		},
	},
}

func runCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		name = "basic"
	}

	entry, ok := scenario.Get(name)
	if !ok {
		return cli.Exit(fmt.Sprintf("unknown scenario: %s (try `chainharness list`)", name), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	kvs, err := conv.ParseKeyValues(c.StringSlice("param"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	params := conv.InferTypedMap(kvs)

	store, err := history.Open(cfg.Dirs().Records())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer store.Close()

	// A signal cancels the context, which interrupts any barrier
	// mid-poll; teardown still runs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	runner := scenario.NewRunner(cfg, &proc.LocalController{})
	res := runner.Run(ctx, name, entry.Hooks(), entry.DefaultParams, params)

	rec := &history.Record{
		ID:       res.RunID,
		Scenario: res.Scenario,
		Outcome:  "ok",
		Started:  res.Started,
		Finished: res.Finished,
	}
	if res.Err != nil {
		rec.Outcome = "failed"
		rec.Error = res.Err.Error()
	}
	if rec.ID != "" {
		if err := store.Put(rec); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	if !res.Ok() {
		return cli.Exit(res.Err.Error(), 1)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	// Flags override the environment file.
	if c.IsSet("nodes") {
		cfg.Nodes = c.Int("nodes")
	}
	if v := c.String("node-binary"); v != "" {
		cfg.NodeBinary = v
	}
	if v := c.String("candidate"); v != "" {
		cfg.CandidateBinary = v
	}
	if v := c.String("reference"); v != "" {
		cfg.ReferenceBinary = v
	}
	if c.Bool("nocleanup") {
		cfg.KeepDirs = true
	}
	if c.Bool("noshutdown") {
		cfg.NoShutdown = true
		cfg.KeepDirs = true
	}
	if c.Bool("tracerpc") || c.Bool("vv") {
		cfg.TraceRPC = true
	}
	if c.Bool("collect") {
		cfg.Collect = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

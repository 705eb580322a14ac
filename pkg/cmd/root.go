package cmd

import "github.com/urfave/cli/v2"

// RootCommands collects all subcommands of the chainharness CLI.
var RootCommands = cli.Commands{
	&RunCommand,
	&ListCommand,
	&RunsCommand,
	&CacheCommand,
}

var RootFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "v",
		Usage: "verbose output (equivalent to DEBUG log level)",
	},
	&cli.BoolFlag{
		Name:  "vv",
		Usage: "super verbose output (DEBUG log level plus remote-call tracing)",
	},
}

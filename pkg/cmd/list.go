package cmd

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"github.com/urfave/cli/v2"

	"github.com/chainharness/chainharness/pkg/scenario"
)

// ListCommand is the specification of the `list` command.
var ListCommand = cli.Command{
	Name:   "list",
	Usage:  "list all registered scenarios",
	Action: listCommand,
}

func listCommand(c *cli.Context) error {
	for _, e := range scenario.List() {
		fmt.Println(e.Name)
		desc := wordwrap.WrapString(e.Description, 76)
		for _, line := range strings.Split(desc, "\n") {
			fmt.Println("    " + line)
		}
	}
	return nil
}

package version

import (
	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version of the binary"
}

func (c *Command) Help() string {
	return `Usage: b2handle version

  This command prints the version of the binary.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}

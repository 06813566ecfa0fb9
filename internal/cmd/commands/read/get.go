package read

import (
	"flag"
	"fmt"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
)

// GetCommand prints one value of a handle record.
type GetCommand struct {
	*base.Command

	client  base.ClientFlags
	flagKey string
}

func (c *GetCommand) Synopsis() string {
	return "Print the value of one entry type of a handle"
}

func (c *GetCommand) Help() string {
	return `Usage: b2handle get -key=TYPE <handle>

  Prints the value of the first entry of the given type. Exits with status 2
  when the record has no entry of that type.` + c.Flags().Help()
}

func (c *GetCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("get", flag.ContinueOnError))

	f.StringVar(
		&c.flagKey, "key", "URL",
		"Entry type to print.",
	)
	c.client.AddFlags(f)

	return f
}

func (c *GetCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("exactly one handle is required")
		return 1
	}
	if err := c.client.Validate(); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	h := f.Arg(0)

	ctx, cancel := c.Context()
	defer cancel()

	client, err := c.client.NewClient(ctx, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating handle client: %v", err))
		return 1
	}

	var (
		value string
		found bool
	)
	err = c.client.Retry(ctx, c.Log, func() error {
		var err error
		value, found, err = client.GetValueFromHandle(ctx, h, c.flagKey)
		return err
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if !found {
		c.UI.Warn(fmt.Sprintf("%s has no entry of type %s", h, c.flagKey))
		return 2
	}

	c.UI.Output(value)
	return 0
}

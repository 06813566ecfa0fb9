package write

import (
	"flag"
	"fmt"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
)

// DeleteCommand deletes a handle or some of its entries.
type DeleteCommand struct {
	*base.Command

	client    base.ClientFlags
	flagTypes base.StringSliceFlag
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a handle or entries of it"
}

func (c *DeleteCommand) Help() string {
	return `Usage: b2handle delete [-type=TYPE ...] [options] <handle>

  Deletes the handle. With -type only the entries of the given types are
  deleted.` + c.Flags().Help()
}

func (c *DeleteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("delete", flag.ContinueOnError))

	f.Var(
		&c.flagTypes, "type",
		"(Repeatable) Entry type to delete instead of the whole handle.",
	)
	c.client.AddFlags(f)

	return f
}

func (c *DeleteCommand) Run(args []string) int {
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

	err = c.client.Retry(ctx, c.Log, func() error {
		if len(c.flagTypes) > 0 {
			return client.DeleteHandleValue(ctx, h, c.flagTypes...)
		}
		return client.DeleteHandle(ctx, h)
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Info(fmt.Sprintf("Deleted %s", h))
	return 0
}

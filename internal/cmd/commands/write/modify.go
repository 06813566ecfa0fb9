package write

import (
	"flag"
	"fmt"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/pkg/handleclient"
)

// ModifyCommand changes entries of a handle.
type ModifyCommand struct {
	*base.Command

	client     base.ClientFlags
	flagValues base.KeyValueFlag
	flagNoAdd  bool
	flagTTL    int
}

func (c *ModifyCommand) Synopsis() string {
	return "Change entries of a handle"
}

func (c *ModifyCommand) Help() string {
	return `Usage: b2handle modify -value=TYPE=VALUE [-value=...] [options] <handle>

  Sets the value of the first entry of each given type. Types the record
  does not have yet are added unless -no-add is given.` + c.Flags().Help()
}

func (c *ModifyCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("modify", flag.ContinueOnError))

	f.Var(
		&c.flagValues, "value",
		"(Required, repeatable) New value as TYPE=VALUE.",
	)
	f.BoolVar(
		&c.flagNoAdd, "no-add", false,
		"Fail instead of adding entries for new types.",
	)
	f.IntVar(
		&c.flagTTL, "ttl", 0,
		"TTL in seconds of the written entries. 0 keeps the server default.",
	)
	c.client.AddFlags(f)

	return f
}

func (c *ModifyCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("exactly one handle is required")
		return 1
	}
	if len(c.flagValues) == 0 {
		c.UI.Error("at least one -value is required")
		return 1
	}
	if c.flagTTL < 0 {
		c.UI.Error("ttl must be non-negative")
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

	opts := handleclient.ModifyOptions{AddIfNotExist: !c.flagNoAdd}
	if c.flagTTL > 0 {
		ttl := c.flagTTL
		opts.TTL = &ttl
	}
	err = c.client.Retry(ctx, c.Log, func() error {
		return client.ModifyHandleValues(ctx, h, c.flagValues, opts)
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Info(fmt.Sprintf("Modified %s", h))
	return 0
}

package write

import (
	"flag"
	"fmt"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/pkg/handleclient"
)

// CreateCommand registers a new handle.
type CreateCommand struct {
	*base.Command

	client        base.ClientFlags
	flagURL       string
	flagChecksum  string
	flagValues    base.KeyValueFlag
	flagOverwrite bool
	flagPrefix    string
}

func (c *CreateCommand) Synopsis() string {
	return "Register a handle"
}

func (c *CreateCommand) Help() string {
	return `Usage: b2handle create -url=LOCATION [options] <handle>
       b2handle create -url=LOCATION -prefix=PREFIX [options]

  Registers a handle pointing at LOCATION. With -prefix instead of a handle
  the suffix is a random UUID. The new handle is printed.` + c.Flags().Help()
}

func (c *CreateCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("create", flag.ContinueOnError))

	f.StringVar(
		&c.flagURL, "url", "",
		"(Required) Location the handle resolves to.",
	)
	f.StringVar(
		&c.flagChecksum, "checksum", "",
		"Checksum of the data at the location.",
	)
	f.Var(
		&c.flagValues, "value",
		"(Repeatable) Additional entry as TYPE=VALUE.",
	)
	f.BoolVar(
		&c.flagOverwrite, "overwrite", false,
		"Replace the handle if it exists.",
	)
	f.StringVar(
		&c.flagPrefix, "prefix", "",
		"Generate a handle under this prefix.",
	)
	c.client.AddFlags(f)

	return f
}

func (c *CreateCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagURL == "" {
		c.UI.Error("url flag is required")
		return 1
	}
	switch {
	case c.flagPrefix == "" && f.NArg() != 1:
		c.UI.Error("exactly one handle is required")
		return 1
	case c.flagPrefix != "" && f.NArg() != 0:
		c.UI.Error("either a handle or -prefix can be given, not both")
		return 1
	}
	if err := c.client.Validate(); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	ctx, cancel := c.Context()
	defer cancel()

	client, err := c.client.NewClient(ctx, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating handle client: %v", err))
		return 1
	}

	opts := handleclient.RegisterOptions{
		Overwrite:   c.flagOverwrite,
		Checksum:    c.flagChecksum,
		ExtraValues: c.flagValues,
	}
	var h string
	err = c.client.Retry(ctx, c.Log, func() error {
		var err error
		if c.flagPrefix != "" {
			h, err = client.GenerateAndRegisterHandle(ctx, c.flagPrefix, c.flagURL, opts)
		} else {
			h, err = client.RegisterHandle(ctx, f.Arg(0), c.flagURL, opts)
		}
		return err
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Output(h)
	return 0
}

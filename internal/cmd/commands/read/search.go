package read

import (
	"flag"
	"fmt"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/pkg/handleclient"
)

// SearchCommand runs a reverse lookup.
type SearchCommand struct {
	*base.Command

	client     base.ClientFlags
	flagTerms  base.KeyValueFlag
	flagPrefix string
	flagLimit  int
	flagPage   int
}

func (c *SearchCommand) Synopsis() string {
	return "Find handles by entry value"
}

func (c *SearchCommand) Help() string {
	return `Usage: b2handle search -term=TYPE=PATTERN [-term=...] [options]

  Searches the reverse lookup servlet of the server for handles whose
  entries match all terms. "*" in a pattern matches any text.` + c.Flags().Help()
}

func (c *SearchCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("search", flag.ContinueOnError))

	f.Var(
		&c.flagTerms, "term",
		"(Required, repeatable) Search term as TYPE=PATTERN, e.g. URL=*example.org*.",
	)
	f.StringVar(
		&c.flagPrefix, "prefix", "",
		"Only return handles under this prefix.",
	)
	f.IntVar(
		&c.flagLimit, "limit", 0,
		"Maximum number of results.",
	)
	f.IntVar(
		&c.flagPage, "page", 0,
		"Result page, starting at 0.",
	)
	c.client.AddFlags(f)

	return f
}

func (c *SearchCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if len(c.flagTerms) == 0 {
		c.UI.Error("at least one -term is required")
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

	q := handleclient.SearchQuery{
		Terms:  c.flagTerms,
		Prefix: c.flagPrefix,
		Limit:  c.flagLimit,
		Page:   c.flagPage,
	}
	var handles []string
	err = c.client.Retry(ctx, c.Log, func() error {
		var err error
		handles, err = client.SearchHandle(ctx, q)
		return err
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	for _, h := range handles {
		c.UI.Output(h)
	}
	return 0
}

package read

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/pkg/handle"
)

// RecordCommand prints a complete handle record.
type RecordCommand struct {
	*base.Command

	client     base.ClientFlags
	flagFormat string
}

func (c *RecordCommand) Synopsis() string {
	return "Print the record of a handle"
}

func (c *RecordCommand) Help() string {
	return `Usage: b2handle record [options] <handle>

  Prints all entries of a handle record, as table or as the JSON the
  server returned.` + c.Flags().Help()
}

func (c *RecordCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("record", flag.ContinueOnError))

	f.StringVar(
		&c.flagFormat, "format", "table",
		"Output format: table or json.",
	)
	c.client.AddFlags(f)

	return f
}

func (c *RecordCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("exactly one handle is required")
		return 1
	}
	if c.flagFormat != "table" && c.flagFormat != "json" {
		c.UI.Error(fmt.Sprintf("unknown format %q", c.flagFormat))
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

	var rec *handle.Record
	err = c.client.Retry(ctx, c.Log, func() error {
		var err error
		rec, err = client.RetrieveHandleRecordJSON(ctx, h)
		return err
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	out, err := FormatRecord(rec, c.flagFormat)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output(out)
	return 0
}

// FormatRecord renders rec as "table" or "json".
func FormatRecord(rec *handle.Record, format string) (string, error) {
	if format == "json" {
		raw, err := handle.Encode(rec)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTYPE\tVALUE\tTTL\tTIMESTAMP")
	for _, e := range rec.Values {
		ttl := "-"
		if e.TTL != nil {
			ttl = strconv.Itoa(*e.TTL)
		}
		ts := "-"
		if e.Timestamp != nil {
			ts = e.Timestamp.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Index, e.Type, e.Data.String(), ttl, ts)
	}
	w.Flush()
	return strings.TrimRight(buf.String(), "\n"), nil
}

package base

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
)

// FlagSet wraps flag.FlagSet and renders its flags for command help.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet returns a FlagSet. Usage output of the wrapped set is
// suppressed; commands print Help instead.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	f.SetOutput(io.Discard)
	f.Usage = func() {}
	return &FlagSet{FlagSet: f}
}

// Help returns the "Options" section of a command's help text.
func (f *FlagSet) Help() string {
	var b strings.Builder
	b.WriteString("\n\nOptions:\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "\n  -%s", fl.Name)
		if fl.DefValue != "" && fl.DefValue != "[]" {
			fmt.Fprintf(&b, "=%s", fl.DefValue)
		}
		b.WriteString("\n")
		usage := wordwrap.WrapString(fl.Usage, 72)
		for _, line := range strings.Split(usage, "\n") {
			fmt.Fprintf(&b, "      %s\n", line)
		}
	})
	return strings.TrimRight(b.String(), "\n")
}

// KeyValueFlag is a repeatable "KEY=VALUE" flag.
type KeyValueFlag map[string]string

var _ flag.Value = (*KeyValueFlag)(nil)

func (kv *KeyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	keys := make([]string, 0, len(*kv))
	for k := range *kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+(*kv)[k])
	}
	return strings.Join(pairs, ",")
}

func (kv *KeyValueFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", s)
	}
	if *kv == nil {
		*kv = make(KeyValueFlag)
	}
	if _, dup := (*kv)[k]; dup {
		return fmt.Errorf("key %q given more than once", k)
	}
	(*kv)[k] = v
	return nil
}

// StringSliceFlag is a repeatable string flag.
type StringSliceFlag []string

var _ flag.Value = (*StringSliceFlag)(nil)

func (s *StringSliceFlag) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *StringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

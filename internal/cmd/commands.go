package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/internal/cmd/commands/read"
	"github.com/eudat-b2safe/b2handle/internal/cmd/commands/version"
	"github.com/eudat-b2safe/b2handle/internal/cmd/commands/write"
)

// Commands is the mapping of all available b2handle commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"get": func() (cli.Command, error) {
			return &read.GetCommand{Command: b}, nil
		},
		"record": func() (cli.Command, error) {
			return &read.RecordCommand{Command: b}, nil
		},
		"search": func() (cli.Command, error) {
			return &read.SearchCommand{Command: b}, nil
		},
		"create": func() (cli.Command, error) {
			return &write.CreateCommand{Command: b}, nil
		},
		"modify": func() (cli.Command, error) {
			return &write.ModifyCommand{Command: b}, nil
		},
		"delete": func() (cli.Command, error) {
			return &write.DeleteCommand{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}

package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "quill",
		Usage:   "Durable, resumable research workflows with human review",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewApproveCommand(),
			NewReviseCommand(),
			NewInspectCommand(),
			NewThreadsCommand(),
			NewHistoryCommand(),
			NewServeCommand(),
			NewWatchCommand(),
			NewMCPServeCommand(),
			NewSecretCommand(),
		},
	}
}

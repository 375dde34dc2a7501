package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/heartbeat"
)

var plainFlag = &cli.BoolFlag{
	Name:  "plain",
	Usage: "Print the draft as raw markdown",
}

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Start a research thread, or resume one with feedback",
		ArgsUsage: "<input>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "thread",
				Aliases: []string{"t"},
				Usage:   "Thread ID to start or resume (empty = new thread)",
			},
			plainFlag,
		},
		Action: runRun,
	}
}

// NewApproveCommand returns the approve subcommand.
func NewApproveCommand() *cli.Command {
	return &cli.Command{
		Name:      "approve",
		Usage:     "Approve the draft of a parked thread",
		ArgsUsage: "<thread_id>",
		Flags:     []cli.Flag{plainFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := threadArg(cmd, "approve <thread_id>")
			if err != nil {
				return err
			}
			return startOrResume(ctx, cmd, id, "approve")
		},
	}
}

// NewReviseCommand returns the revise subcommand.
func NewReviseCommand() *cli.Command {
	return &cli.Command{
		Name:      "revise",
		Usage:     "Send revision feedback to a parked thread",
		ArgsUsage: "<thread_id> <feedback>",
		Flags:     []cli.Flag{plainFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := threadArg(cmd, "revise <thread_id> <feedback>")
			if err != nil {
				return err
			}
			feedback := strings.Join(cmd.Args().Tail(), " ")
			if strings.TrimSpace(feedback) == "" {
				return fmt.Errorf("usage: quill revise <thread_id> <feedback>")
			}
			return startOrResume(ctx, cmd, id, feedback)
		},
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	input := strings.Join(cmd.Args().Slice(), " ")
	id := cmd.String("thread")
	if id == "" {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("usage: quill run [--thread ID] <input>")
		}
		id = uuid.NewString()
	}
	return startOrResume(ctx, cmd, id, input)
}

func startOrResume(ctx context.Context, cmd *cli.Command, id, input string) error {
	a, err := newApp(ctx, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	warnSharedStore(a)
	fmt.Fprintf(os.Stderr, "Running thread %s...\n", id)
	res, err := a.runner.StartOrResume(ctx, id, input)
	if err != nil {
		return err
	}
	printResult(os.Stdout, res, cmd.Bool("plain"))

	if u := a.usage.Usage(id); u.Calls > 0 {
		fmt.Fprintf(os.Stderr, "\n%d model calls, %d input / %d output tokens\n", u.Calls, u.Input, u.Output)
	}
	return nil
}

// warnSharedStore flags a live gateway on the same store. Thread locks are
// process-local, so a concurrent pass on the same thread cannot be refused.
func warnSharedStore(a *app) {
	status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
	if err != nil || status != heartbeat.StatusAlive || hb.Storage != a.storageID() {
		return
	}
	if a.cfg.Storage.Driver == "memory" {
		return
	}
	fmt.Fprintf(os.Stderr, "warning: gateway (pid %d, %s) is serving the same store\n", hb.PID, hb.Addr)
}

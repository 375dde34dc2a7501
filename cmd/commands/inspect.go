package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewInspectCommand returns the inspect subcommand.
func NewInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the phase and state of a thread",
		ArgsUsage: "<thread_id>",
		Flags:     []cli.Flag{plainFlag, outputFlag},
		Action:    runInspect,
	}
}

// NewThreadsCommand returns the threads subcommand.
func NewThreadsCommand() *cli.Command {
	return &cli.Command{
		Name:   "threads",
		Usage:  "List known threads",
		Flags:  []cli.Flag{outputFlag},
		Action: runThreads,
	}
}

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the checkpoint history of a thread",
		ArgsUsage: "<thread_id>",
		Flags:     []cli.Flag{outputFlag},
		Action:    runHistory,
	}
}

func runInspect(ctx context.Context, cmd *cli.Command) error {
	id, err := threadArg(cmd, "inspect <thread_id>")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.Inspect(ctx, id)
	if err != nil {
		return err
	}
	if done, err := writeStructured(os.Stdout, cmd.String("output"), res); done {
		return err
	}
	printResult(os.Stdout, res, cmd.Bool("plain"))
	return nil
}

func runThreads(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	if done, err := writeStructured(os.Stdout, cmd.String("output"), list); done {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No threads found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEQ\tNEXT\tREVISION\tUPDATED\tTASK")
	for _, s := range list {
		next := strings.Join(s.Next, ",")
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n",
			s.ThreadID,
			s.Seq,
			next,
			s.RevisionCount,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncate(s.Task, 60),
		)
	}
	return w.Flush()
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	id, err := threadArg(cmd, "history <thread_id>")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.store.History(ctx, id)
	if err != nil {
		return fmt.Errorf("history %s: %w", id, err)
	}
	if done, err := writeStructured(os.Stdout, cmd.String("output"), history); done {
		return err
	}
	if len(history) == 0 {
		fmt.Printf("No history for thread %s.\n", id)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tSTEP\tNEXT\tREVISION\tVALID\tAT")
	for _, cp := range history {
		next := strings.Join(cp.Next, ",")
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\t%s\n",
			cp.Seq,
			cp.Step,
			next,
			cp.State.RevisionCount,
			cp.State.IsValid,
			cp.UpdatedAt.Local().Format("15:04:05.000"),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

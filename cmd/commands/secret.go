package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage encrypted provider credentials",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Encrypt a value and store it in the Quill .env file",
				ArgsUsage: "<NAME> [value]",
				Action:    runSecretSet,
			},
		},
	}
}

func runSecretSet(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: quill secret set <NAME> [value]")
	}

	value := cmd.Args().Get(1)
	if value == "" {
		var err error
		if value, err = readSecretValue(name); err != nil {
			return err
		}
	}
	if value == "" {
		return fmt.Errorf("empty value for %s", name)
	}

	ring := secrets.Default()
	if err := ring.EnsureIdentity(); err != nil {
		return err
	}
	sealed, err := ring.Seal(value)
	if err != nil {
		return err
	}
	if err := secrets.SetEntry(config.DotenvPath(), name, sealed); err != nil {
		return fmt.Errorf("update dotenv: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%s stored encrypted in %s (key %s)\n", name, config.DotenvPath(), ring.Path())
	return nil
}

// readSecretValue prompts without echo on a terminal and reads one line otherwise.
func readSecretValue(name string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", name)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read value: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read value: %w", err)
	}
	return strings.TrimSpace(line), nil
}

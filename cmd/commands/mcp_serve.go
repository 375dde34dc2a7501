package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	quillmcp "github.com/dohr-michael/quill/internal/mcp"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp-serve",
		Usage:  "Expose the research workflow as an MCP server (stdio)",
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// Logs go to stderr; stdout carries the MCP stdio transport.
	a, err := newApp(ctx, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Debug("starting MCP server")

	server := quillmcp.NewMCPServer(a.runner, Version)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

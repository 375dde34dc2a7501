package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/gateway"
	"github.com/dohr-michael/quill/internal/heartbeat"
	"github.com/dohr-michael/quill/internal/recovery"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Quill gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, slog.LevelDebug)
	if err != nil {
		return err
	}
	defer a.Close()

	// CLI flags override config
	if cmd.IsSet("host") {
		a.cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		a.cfg.Gateway.Port = cmd.Int("port")
	}

	rec, err := recovery.New(a.runner, a.cfg.Recovery, a.bus)
	if err != nil {
		return err
	}
	rec.Start(ctx)
	defer rec.Stop()

	addr := fmt.Sprintf("%s:%d", a.cfg.Gateway.Host, a.cfg.Gateway.Port)
	hb := heartbeat.NewWriter(config.HeartbeatPath(), addr, a.storageID())
	if err := hb.Start(); err != nil {
		slog.Warn("heartbeat disabled", "error", err)
	}
	defer hb.Stop()

	server := gateway.NewServer(a.bus, a.runner, a.usage, a.cfg.Gateway.Host, a.cfg.Gateway.Port)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for signal or error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

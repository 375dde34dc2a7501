package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/quill/clients/ws"
	wsprotocol "github.com/dohr-michael/quill/internal/gateway/ws"
)

// NewWatchCommand returns the watch subcommand.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream workflow events from a running gateway",
		ArgsUsage: "[thread_id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway address (host:port)",
			},
			&cli.StringFlag{
				Name:  "send",
				Usage: "Input to send to the thread before watching; exits once the pass settles",
			},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	threadID := cmd.Args().First()
	send := cmd.String("send")
	if send != "" && threadID == "" {
		return fmt.Errorf("usage: quill watch <thread_id> --send <input>")
	}

	addr := cmd.String("gateway")
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/api/ws"}
	if threadID != "" {
		u.RawQuery = url.Values{"thread_id": {threadID}}.Encode()
	}

	client, err := wsclient.Dial(ctx, u.String())
	if err != nil {
		return fmt.Errorf("connect to gateway at %s: %w", addr, err)
	}
	defer client.Close()

	var pending string
	if send != "" {
		if pending, err = client.StartOrResume(threadID, send); err != nil {
			return err
		}
	}

	for {
		f, err := client.ReadFrame()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		switch f.Type {
		case wsprotocol.FrameTypeEvent:
			fmt.Fprintf(os.Stdout, "%s  %-30s %-12s %s\n",
				time.Now().Format("15:04:05"), f.Event, truncate(f.ThreadID, 12), f.Payload)
		case wsprotocol.FrameTypeResponse:
			if f.ID != pending {
				continue
			}
			if f.OK == nil || !*f.OK {
				return fmt.Errorf("gateway: %s", f.Error)
			}
			fmt.Fprintf(os.Stdout, "%s\n", f.Payload)
			return nil
		}
	}
}

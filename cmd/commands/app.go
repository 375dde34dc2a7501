package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/guard"
	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/research"
	"github.com/dohr-michael/quill/internal/search"
	"github.com/dohr-michael/quill/internal/storage"
	"github.com/dohr-michael/quill/internal/workflow"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	bus      *events.Bus
	store    checkpoint.Store
	registry *models.Registry
	engine   *workflow.Engine
	runner   *guard.Runner
	usage    *storage.UsageTracker
	eventLog *storage.EventLogger
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config not found, using defaults", "path", path)
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs a stderr text handler. Interactive commands pass
// minLevel=warn so progress logs do not mix with their output.
func setupLogging(cmd *cli.Command, cfg *config.Config, minLevel slog.Level) {
	level := config.ParseLogLevel(cfg.Events.LogLevel)
	if level < minLevel {
		level = minLevel
	}
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newApp(ctx context.Context, cmd *cli.Command, minLevel slog.Level) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogging(cmd, cfg, minLevel)

	a := &app{cfg: cfg}
	a.bus = events.NewBus(cfg.Events.BufferSize)
	a.eventLog = storage.NewEventLogger(cfg.Events.LogDir, a.bus)
	a.usage = storage.NewUsageTracker()

	a.store, err = checkpoint.Open(cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = models.NewRegistry(cfg.Models)
	web, academic, err := search.New(ctx, cfg.Search)
	if err != nil {
		a.Close()
		return nil, err
	}

	steps := cfg.Workflow.StepModels
	graph, err := research.NewGraph(research.Deps{
		Writer:          models.NewGenerator(a.registry, steps.Writer, research.Writer, a.bus).WithUsage(a.usage),
		Validator:       models.NewGenerator(a.registry, steps.Validator, research.Validator, a.bus).WithUsage(a.usage),
		Refiner:         models.NewGenerator(a.registry, steps.Refiner, research.Refiner, a.bus).WithUsage(a.usage),
		Web:             web,
		Academic:        academic,
		Bus:             a.bus,
		RevisionBound:   cfg.Workflow.RevisionBound,
		ValidatorPolicy: cfg.Workflow.ValidatorPolicy,
		DraftLimit:      cfg.Workflow.ValidatorDraftLimit,
		Topology:        cfg.Workflow.Topology,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = workflow.NewEngine(graph, a.store,
		workflow.WithEventBus(a.bus),
		workflow.WithMaxSteps(cfg.Workflow.MaxSteps),
	)
	a.runner = guard.NewRunner(a.engine)

	slog.Debug("quill ready",
		"storage", cfg.Storage.Driver,
		"model", a.registry.DefaultName(),
		"web_search", web.Name(),
		"academic_search", academic.Name(),
	)
	return a, nil
}

// Close releases every component in reverse order of creation.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
	}
	if a.eventLog != nil {
		a.eventLog.Close()
	}
	if a.bus != nil {
		a.bus.Close()
	}
}

// storageID identifies the checkpoint store this process opened.
func (a *app) storageID() string {
	return a.cfg.Storage.Driver + ":" + a.cfg.Storage.Path
}

func threadArg(cmd *cli.Command, usage string) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", fmt.Errorf("usage: quill %s", usage)
	}
	return id, nil
}

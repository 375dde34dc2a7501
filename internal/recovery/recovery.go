// Package recovery resumes threads that were interrupted mid-pass by a crash
// or restart. Threads parked for human review are never touched.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/guard"
)

// Recoverer resumes interrupted threads on startup and on a cron schedule.
type Recoverer struct {
	runner   *guard.Runner
	bus      *events.Bus
	cfg      config.RecoveryConfig
	schedule cron.Schedule

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New parses the recovery schedule. An empty schedule disables periodic sweeps.
func New(runner *guard.Runner, cfg config.RecoveryConfig, bus *events.Bus) (*Recoverer, error) {
	r := &Recoverer{
		runner: runner,
		bus:    bus,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
	if cfg.Schedule != "" {
		s, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("recovery schedule %q: %w", cfg.Schedule, err)
		}
		r.schedule = s
	}
	return r, nil
}

// RecoverAll resumes every interrupted thread once and returns how many ran.
// Busy threads are skipped; a thread that fails again is logged and counted as not recovered.
func (r *Recoverer) RecoverAll(ctx context.Context) (int, error) {
	ids, err := r.runner.Engine().Recoverable(ctx)
	if err != nil {
		return 0, fmt.Errorf("recovery: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res, err := r.runner.StartOrResume(ctx, id, "")
		switch {
		case errors.Is(err, guard.ErrThreadBusy):
			slog.Debug("recovery skipped busy thread", "thread_id", id)
			continue
		case err != nil:
			slog.Warn("recovery failed", "thread_id", id, "error", err)
			continue
		}
		slog.Info("thread recovered", "thread_id", id, "phase", res.Phase, "pending", res.Pending)
		if r.bus != nil {
			r.bus.Publish(events.NewTypedEventWithThread(events.SourceRecovery,
				events.ThreadRecoveredPayload{Phase: string(res.Phase), Pending: res.Pending}, id))
		}
		recovered++
	}

	if len(ids) > 0 {
		slog.Info("recovery sweep done", "candidates", len(ids), "recovered", recovered)
	}
	return recovered, ctx.Err()
}

// Start runs the startup sweep (unless disabled) and the cron loop in the background.
func (r *Recoverer) Start(ctx context.Context) {
	if r.cfg.RunOnStartup() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.RecoverAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("startup recovery", "error", err)
			}
		}()
	}

	if r.schedule != nil {
		r.wg.Add(1)
		go r.loop(ctx)
		slog.Info("recovery scheduled", "schedule", r.cfg.Schedule)
	}
}

func (r *Recoverer) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		now := time.Now()
		next := r.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-r.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := r.RecoverAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("scheduled recovery", "error", err)
			}
		}
	}
}

// Stop halts the cron loop and waits for in-flight sweeps.
func (r *Recoverer) Stop() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}

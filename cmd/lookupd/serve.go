package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lookupd/internal/config"
	"lookupd/internal/enrich"
	"lookupd/internal/home"
	"lookupd/internal/lookup"
	"lookupd/internal/reload"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Enrich JSON lines from stdin to stdout, reloading tables on SIGHUP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			hd, err := resolveHome(cmd)
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			workers, _ := cmd.Flags().GetInt("workers")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx, hd, path, workers)
		},
	}
	cmd.Flags().Int("workers", 0, "enrichment workers (default: config value, else 4)")
	return cmd
}

func (a *app) serve(ctx context.Context, hd home.Dir, path string, workers int) error {
	logger := a.logger

	// Queue SIGHUP from here on so a reload request during the initial
	// load is served afterwards instead of killing the process.
	hup, stopHup := reload.Capture(syscall.SIGHUP)
	defer stopHup()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.Workers
	}
	if workers <= 0 {
		workers = 4
	}

	if err := hd.EnsureExists(); err != nil {
		return err
	}
	id, err := hd.InstanceID()
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}
	logger.Info("starting lookupd", "instance", id, "config", path,
		"tables", len(cfg.Tables), "rules", len(cfg.Rules), "workers", workers)

	reg, err := openRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	enricher, err := enrich.New(reg, cfg.Rules, logger)
	if err != nil {
		return err
	}

	var sched *reload.Scheduler
	if cfg.Reload.Cron != "" {
		sched, err = reload.NewScheduler(reg, cfg.Reload.Cron, logger)
		if err != nil {
			return err
		}
	}

	// Triggers run until the input is exhausted or the process is stopped.
	triggerCtx, stopTriggers := context.WithCancel(ctx)
	defer stopTriggers()
	g, triggerCtx := errgroup.WithContext(triggerCtx)

	g.Go(func() error {
		reload.OnNotify(triggerCtx, reg, logger, hup)
		return nil
	})
	if cfg.Reload.Watch {
		w := reload.NewWatcher(reg, reload.WatcherConfig{
			Logger:      logger,
			MinInterval: time.Duration(cfg.Reload.MinInterval),
		})
		g.Go(func() error { return w.Run(triggerCtx) })
	}
	if sched != nil {
		g.Go(func() error { return sched.Run(triggerCtx) })
	}

	// A read from stdin cannot be interrupted, so on shutdown the stream
	// is abandoned rather than waited for.
	streamDone := make(chan error, 1)
	go func() { streamDone <- enricher.Stream(triggerCtx, a.stdin, a.stdout, workers) }()

	var streamErr error
	select {
	case streamErr = <-streamDone:
	case <-triggerCtx.Done():
		logger.Info("shutting down")
	}
	stopTriggers()
	triggerErr := g.Wait()

	if errors.Is(streamErr, context.Canceled) {
		streamErr = nil
	}
	if err := errors.Join(streamErr, triggerErr); err != nil {
		return err
	}
	logger.Info("lookupd stopped")
	return nil
}

// openRegistry loads every configured table. Any failure aborts startup.
func openRegistry(cfg *config.Config, logger *slog.Logger) (*lookup.Registry, error) {
	reg := lookup.NewRegistry(lookup.Config{Logger: logger})
	for _, tc := range cfg.LookupTables() {
		if _, err := reg.Open(tc); err != nil {
			reg.Close()
			return nil, fmt.Errorf("open lookup tables: %w", err)
		}
	}
	return reg, nil
}

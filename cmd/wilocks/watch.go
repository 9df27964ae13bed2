package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/books"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/config"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/controller"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/home"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/server"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow host and book changes and apply locks as they happen",
	Long: `Run until interrupted, reacting to:
  - host.yaml edits that switch character, group or chat (lock check)
  - settings.yaml edits made by another wilocks process (reload)
  - books appearing, disappearing or being renamed (rename proposals)
  - config file edits (log level and timings that are read per use)

With --metrics-addr (or metrics_addr in config) the server exposes:
  - /health  - liveness
  - /status  - active preset, loaded books and lock resolution
  - /metrics - Prometheus metrics

Examples:
  wilocks watch
  wilocks watch --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		cfg := a.configs.Get()
		a.configs.OnChange(func(c *config.Config) {
			a.level.Set(c.SlogLevel())
			a.logger.Info("config reloaded", "file", a.configs.File(), "log_level", c.LogLevel)
		})
		if a.configs.File() != "" {
			a.configs.WatchConfig()
		}

		if err := a.controller.Handle(ctx, controller.Event{Kind: controller.ChatLoaded}); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		addr := watchMetricsAddr
		if addr == "" {
			addr = cfg.MetricsAddr
		}

		var wg sync.WaitGroup
		errCh := make(chan error, 3)
		run := func(name string, fn func(context.Context) error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(ctx); err != nil {
					errCh <- fmt.Errorf("%s: %w", name, err)
				}
			}()
		}

		bookWatcher := books.NewWatcher(a.books, cfg.RenamePoll, func(ctx context.Context, names []string) {
			if err := a.controller.Handle(ctx, controller.Event{Kind: controller.BookListChanged, Books: names}); err != nil {
				a.logger.Warn("book list event failed", "error", err)
			}
		}, a.logger)
		run("book watcher", bookWatcher.Run)
		run("state watcher", a.watchState)

		if addr != "" {
			srv := server.New(server.Config{
				Addr:     addr,
				Gatherer: a.metrics,
				Status: func(ctx context.Context) any {
					return a.view.Get(ctx)
				},
				Logger: a.logger,
			})
			run("metrics server", srv.Start)
		}

		a.logger.Info("watching", "home", a.home.Path(), "metrics_addr", addr)

		var err error
		select {
		case <-ctx.Done():
		case err = <-errCh:
		}
		cancel()
		wg.Wait()
		return err
	}),
}

// watchState reloads host and settings files edited by someone else. The
// home directory is watched rather than the files, since saves replace them.
func (a *app) watchState(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(a.home.Path()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", a.home.Path(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			switch filepath.Base(ev.Name) {
			case home.HostFileName:
				a.reloadHost(ctx)
			case home.SettingsFileName:
				if err := a.settings.Reload(); err != nil {
					a.logger.Warn("failed to reload settings", "error", err)
					continue
				}
				a.view.Refresh(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("state watcher error", "error", err)
		}
	}
}

func (a *app) reloadHost(ctx context.Context) {
	changed, err := a.host.Reload()
	if err != nil {
		a.logger.Warn("failed to reload host state", "error", err)
		return
	}
	a.view.Refresh(ctx)
	if !changed {
		return
	}
	if err := a.controller.Handle(ctx, controller.Event{Kind: controller.ChatChanged}); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("chat change event failed", "error", err)
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve /health, /status and /metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

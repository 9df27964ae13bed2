package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/activation"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/api"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/books"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/config"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/controller"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/engine"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/home"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/host"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/lifecycle"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/metrics"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/reconcile"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/settings"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

const metricsNamespace = "wilocks"

// app is one fully wired process: config, persisted state and the core
// components built over them.
type app struct {
	configs *config.Manager
	home    *home.Dir
	level   *slog.LevelVar
	logger  *slog.Logger

	settings   *settings.Store
	host       *host.Host
	contexts   *hostctx.Resolver
	lockStore  *locks.Store
	locks      *locks.Resolver
	books      *books.Dir
	engine     *engine.File
	dialog     *ui.Terminal
	metrics    *prometheus.Registry
	observer   *metrics.Observer
	activation *activation.Engine
	lifecycle  *lifecycle.Manager
	reconciler *reconcile.Reconciler
	controller *controller.Controller
	out        *api.Printer
	view       *statusView
}

func newApp(cmd *cobra.Command) (*app, error) {
	configs, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := configs.Get()

	dir := homeDir
	if dir == "" {
		dir = cfg.Home
	}
	h, err := home.New(dir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	format, err := api.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	st, err := settings.Open(h.SettingsPath(),
		settings.WithDebounce(cfg.SettingsDebounce), settings.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	hs, err := host.Open(h.HostPath(),
		host.WithDebounce(cfg.SettingsDebounce), host.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	observer, err := metrics.NewObserver(metricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := &app{
		configs:  configs,
		home:     h,
		level:    level,
		logger:   logger,
		settings: st,
		host:     hs,
		contexts: hostctx.NewResolver(hs, hostctx.WithCacheDuration(cfg.ContextCache)),
		books:    books.NewDir(h.BooksPath(), logger),
		engine:   engine.NewFile(h.EnginePath(), logger),
		dialog:   ui.NewTerminal(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes),
		metrics:  reg,
		observer: observer,
		out:      api.NewPrinter(cmd.OutOrStdout(), format),
	}
	a.view = &statusView{app: a}
	a.lockStore = locks.NewStore(hs, st)
	a.locks = locks.NewResolver(a.lockStore, a.contexts)

	a.activation = activation.New(activation.Config{
		Registry: st.Registry(),
		Locks:    a.locks,
		Books:    a.books,
		Patcher:  a.engine,
		Dialog:   a.dialog,
		Observer: observer,
		Logger:   logger,
		OnCommit: func(name string) {
			logger.Debug("selection moved", "preset", name)
			a.view.Refresh(context.Background())
		},
	})
	a.lifecycle = lifecycle.New(lifecycle.Config{
		Settings:   st,
		Locks:      a.lockStore,
		Activation: a.activation,
		Books:      a.books,
		Patcher:    a.engine,
		Dialog:     a.dialog,
		Logger:     logger,
	})
	a.reconciler = reconcile.New(st.Registry(), a.dialog,
		reconcile.WithThrottle(cfg.RenameThrottle),
		reconcile.WithObserver(observer),
		reconcile.WithLogger(logger),
		reconcile.WithOnChange(func() { a.view.Refresh(context.Background()) }),
	)
	a.controller = controller.New(controller.Config{
		Settings:   st,
		Contexts:   a.contexts,
		Locks:      a.locks,
		Activation: a.activation,
		Reconciler: a.reconciler,
		Dialog:     a.dialog,
		Logger:     logger,
		Attempts:   cfg.Retry.Attempts,
		Delay:      cfg.Retry.Delay,
	})
	return a, nil
}

// Close writes any pending saves.
func (a *app) Close() error {
	return errors.Join(a.settings.Flush(), a.host.Flush())
}

// runApp adapts a command body that needs the wired app.
func runApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd.Context(), a, args)
	}
}

// Status is the combined view served by `status` and GET /status.
type Status struct {
	Preset        string           `json:"preset,omitempty" yaml:"preset,omitempty"`
	Active        []string         `json:"active_books" yaml:"active_books"`
	Presets       []preset.Preset  `json:"presets" yaml:"presets"`
	GlobalDefault string           `json:"global_default,omitempty" yaml:"global_default,omitempty"`
	Locks         locks.Resolution `json:"locks" yaml:"locks"`
	Flags         settings.Flags   `json:"flags" yaml:"flags"`
}

func (a *app) status(ctx context.Context) (Status, error) {
	active, err := a.books.Active(ctx)
	if err != nil {
		return Status{}, err
	}
	s := Status{
		Active:        active,
		Presets:       a.settings.Registry().All(),
		GlobalDefault: a.settings.GlobalDefault(),
		Locks:         a.locks.Resolve(),
		Flags:         a.settings.Flags(),
	}
	if p, ok := a.settings.Registry().CurrentPreset(); ok {
		s.Preset = p.Name
	}
	return s, nil
}

// statusView is the projection behind GET /status. It is rebuilt when the
// selection moves, presets are rewritten or state files are reloaded.
type statusView struct {
	app *app

	mu      sync.RWMutex
	current *Status
}

// Refresh rebuilds the projection; a failed read keeps the previous one.
func (v *statusView) Refresh(ctx context.Context) {
	s, err := v.app.status(ctx)
	if err != nil {
		v.app.logger.Warn("failed to refresh status", "error", err)
		return
	}
	v.mu.Lock()
	v.current = &s
	v.mu.Unlock()
}

// Get returns the projection, building it on first use.
func (v *statusView) Get(ctx context.Context) Status {
	v.mu.RLock()
	current := v.current
	v.mu.RUnlock()
	if current == nil {
		v.Refresh(ctx)
		v.mu.RLock()
		current = v.current
		v.mu.RUnlock()
	}
	if current == nil {
		return Status{}
	}
	return *current
}

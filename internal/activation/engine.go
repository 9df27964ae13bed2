// Package activation moves the live book selection from one preset to
// another with the smallest possible churn.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/books"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/engine"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/metrics"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// Config wires an Engine.
type Config struct {
	Registry *preset.Registry
	Locks    *locks.Resolver
	Books    books.Repository
	// Patcher may be nil, in which case engine settings are never applied.
	Patcher  engine.Patcher
	Dialog   ui.Dialog
	Observer *metrics.Observer
	Logger   *slog.Logger
	// OnCommit runs after the selection pointer moves.
	OnCommit func(presetName string)
}

// Report describes what one activation did.
type Report struct {
	OpID        string         `json:"op_id" yaml:"op_id"`
	Target      string         `json:"target" yaml:"target"`
	Delta       Delta          `json:"delta" yaml:"delta"`
	FailedBooks []string       `json:"failed_books,omitempty" yaml:"failed_books,omitempty"`
	Engine      *engine.Result `json:"engine,omitempty" yaml:"engine,omitempty"`
	LockPrompt  bool           `json:"lock_prompt,omitempty" yaml:"lock_prompt,omitempty"`
	// Superseded is set when a newer request arrived before this one ran.
	Superseded bool `json:"superseded,omitempty" yaml:"superseded,omitempty"`
}

// Engine applies presets to the live book selection.
//
// Activations are serialized. A request still waiting when a newer one
// arrives is dropped, so the final state always matches the last request.
type Engine struct {
	cfg        Config
	negotiator *Negotiator
	logger     *slog.Logger

	mu        sync.Mutex
	requested atomic.Uint64
}

// New creates an activation engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		negotiator: NewNegotiator(cfg.Locks.Store(), cfg.Dialog, cfg.Observer),
		logger:     logger,
	}
}

// Activate makes p the active preset; nil deactivates. Unless skipLockCheck
// is set, switching away from a locked preset first offers to move the
// lock. Expected failures are notified, not returned; an error means a
// collaborator broke its contract.
func (e *Engine) Activate(ctx context.Context, p *preset.Preset, skipLockCheck bool) (Report, error) {
	ticket := e.requested.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()

	target := ""
	if p != nil {
		target = p.Name
	}
	report := Report{OpID: uuid.New().String(), Target: target}
	logger := e.logger.With("op_id", report.OpID, "target", preset.Label(target))

	if ticket != e.requested.Load() {
		logger.Debug("activation superseded by a newer request")
		report.Superseded = true
		return report, nil
	}

	start := time.Now()
	logger.Info("activating preset", "skip_lock_check", skipLockCheck)

	if !skipLockCheck {
		res := e.cfg.Locks.Resolve()
		if res.HasAny() && !preset.SameName(res.Lock, target) {
			report.LockPrompt = true
			accepted := e.negotiator.Negotiate(ctx, res, target)
			logger.Info("lock conflict", "lock", res.Lock, "kind", res.Kind, "accepted", accepted)
		}
	}

	current, err := e.cfg.Books.Active(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read active books: %w", err)
	}
	var want []string
	if p != nil {
		want = p.Books
	}
	report.Delta = ComputeDelta(current, want)

	// Every unload finishes before any load starts.
	for _, name := range report.Delta.Unload {
		err := e.cfg.Books.Unload(ctx, name)
		e.cfg.Observer.BookOp("unload", err)
		if err != nil {
			logger.Warn("failed to unload book", "book", name, "error", err)
			report.FailedBooks = append(report.FailedBooks, name)
		}
	}
	for _, name := range report.Delta.Load {
		err := e.cfg.Books.Load(ctx, name)
		e.cfg.Observer.BookOp("load", err)
		if err != nil {
			logger.Warn("failed to load book", "book", name, "error", err)
			report.FailedBooks = append(report.FailedBooks, name)
		}
	}
	if len(report.FailedBooks) > 0 {
		e.cfg.Dialog.Notify(ui.LevelError, fmt.Sprintf("Failed to update books: %s",
			strings.Join(report.FailedBooks, ", ")))
	}

	if p != nil && p.HasEngineSettings() && e.cfg.Patcher != nil {
		report.Engine = e.applyEngineSettings(ctx, logger, p)
	}

	e.cfg.Registry.SetCurrent(target)
	if e.cfg.OnCommit != nil {
		e.cfg.OnCommit(target)
	}

	e.cfg.Observer.Activation(target, time.Since(start))
	logger.Info("preset activated",
		"unloaded", len(report.Delta.Unload),
		"loaded", len(report.Delta.Load),
		"failed", len(report.FailedBooks),
		"duration", time.Since(start))
	return report, nil
}

func (e *Engine) applyEngineSettings(ctx context.Context, logger *slog.Logger, p *preset.Preset) *engine.Result {
	res, err := e.cfg.Patcher.Apply(ctx, p.EngineSettings)
	if err != nil {
		logger.Error("failed to apply engine settings", "error", err)
		e.cfg.Dialog.Notify(ui.LevelError, fmt.Sprintf("Failed to apply world info settings: %v", err))
		return nil
	}
	e.cfg.Observer.EngineKeys(len(res.Applied), len(res.Failed))
	if len(res.Failed) > 0 {
		logger.Warn("some engine settings were not applied", "failed", res.Failed)
		e.cfg.Dialog.Notify(ui.LevelWarning, fmt.Sprintf("Some world info settings failed to apply: %s",
			strings.Join(res.Failed, ", ")))
	}
	return &res
}

// Deactivate unloads every active book and clears the selection.
func (e *Engine) Deactivate(ctx context.Context, skipLockCheck bool) (Report, error) {
	return e.Activate(ctx, nil, skipLockCheck)
}

// ActivateByName looks the preset up case-insensitively. A miss is notified
// and changes nothing; it never falls through to deactivation.
func (e *Engine) ActivateByName(ctx context.Context, name string) (Report, bool, error) {
	p, ok := e.cfg.Registry.Find(name)
	if !ok {
		e.cfg.Dialog.Notify(ui.LevelWarning, fmt.Sprintf("Preset %q not found", name))
		return Report{}, false, nil
	}
	report, err := e.Activate(ctx, &p, false)
	return report, true, err
}

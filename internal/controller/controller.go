// Package controller turns host events into lock checks and book-list
// reconciliation, and implements the wipreset command.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/activation"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/reconcile"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/settings"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// ErrContextUnavailable means the host has not loaded a character, group or
// chat yet.
var ErrContextUnavailable = errors.New("context not available yet")

const (
	DefaultAttempts = 10
	DefaultDelay    = 100 * time.Millisecond
)

// EventKind is the closed set of host events the controller reacts to.
type EventKind string

const (
	CharacterChanged EventKind = "character-changed"
	ChatChanged      EventKind = "chat-changed"
	ChatLoaded       EventKind = "chat-loaded"
	BookListChanged  EventKind = "book-list-changed"
)

// Event is one host notification. Books is set for BookListChanged.
type Event struct {
	Kind  EventKind
	Books []string
}

// Contexts is the cached context resolver. *hostctx.Resolver implements it.
type Contexts interface {
	Current() hostctx.Context
	Invalidate()
}

// Config wires a Controller.
type Config struct {
	Settings   *settings.Store
	Contexts   Contexts
	Locks      *locks.Resolver
	Activation *activation.Engine
	// Reconciler may be nil when book-list events are not delivered.
	Reconciler *reconcile.Reconciler
	Dialog     ui.Dialog
	Logger     *slog.Logger

	Attempts uint
	Delay    time.Duration
	// Timer replaces real sleeps between attempts.
	Timer retry.Timer
}

// Outcome says what CheckAndApplyLocks decided.
type Outcome string

const (
	OutcomeUnavailable    Outcome = "context-unavailable"
	OutcomeLockApplied    Outcome = "lock-applied"
	OutcomeLockMissing    Outcome = "lock-missing"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeSelectionKept  Outcome = "selection-kept"
	OutcomeDefaultApplied Outcome = "default-applied"
	OutcomeDefaultMissing Outcome = "default-missing"
	OutcomeNone           Outcome = "none"
)

// Result is the outcome of one CheckAndApplyLocks run.
type Result struct {
	Outcome Outcome            `json:"outcome" yaml:"outcome"`
	Preset  string             `json:"preset,omitempty" yaml:"preset,omitempty"`
	Context hostctx.Context    `json:"context" yaml:"context"`
	Report  *activation.Report `json:"report,omitempty" yaml:"report,omitempty"`
}

// Controller dispatches events into the core operations.
type Controller struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a controller.
func New(cfg Config) *Controller {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: logger}
}

// Handle dispatches one event.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case CharacterChanged, ChatChanged, ChatLoaded:
		c.cfg.Contexts.Invalidate()
		res, err := c.CheckAndApplyLocks(ctx)
		if err != nil {
			return err
		}
		c.logger.Debug("event handled", "event", string(ev.Kind), "outcome", string(res.Outcome), "preset", res.Preset)
		return nil
	case BookListChanged:
		if c.cfg.Reconciler != nil {
			c.cfg.Reconciler.Observe(ctx, ev.Books)
		}
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// waitForContext polls until the host has an identity to key locks on.
func (c *Controller) waitForContext(ctx context.Context) (hostctx.Context, error) {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.cfg.Attempts),
		retry.Delay(c.cfg.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.cfg.Contexts.Invalidate()
		}),
	}
	if c.cfg.Timer != nil {
		opts = append(opts, retry.WithTimer(c.cfg.Timer))
	}
	return retry.DoWithData(func() (hostctx.Context, error) {
		current := c.cfg.Contexts.Current()
		if !current.HasIdentity() {
			return current, ErrContextUnavailable
		}
		return current, nil
	}, opts...)
}

// CheckAndApplyLocks brings the active preset in line with the current
// context: an applicable lock wins, then an existing selection, then the
// global default. It waits a bounded time for the context to load and gives
// up quietly if it never does.
func (c *Controller) CheckAndApplyLocks(ctx context.Context) (Result, error) {
	current, err := c.waitForContext(ctx)
	if err != nil {
		if errors.Is(err, ErrContextUnavailable) {
			c.logger.Warn("giving up on lock check, context never became available",
				"attempts", c.cfg.Attempts, "delay", c.cfg.Delay)
			return Result{Outcome: OutcomeUnavailable}, nil
		}
		return Result{}, err
	}

	registry := c.cfg.Settings.Registry()
	flags := c.cfg.Settings.Flags()
	res := Result{Context: current}

	p, source, name, ok := registry.Effective(c.cfg.Locks.LockForContext(), c.cfg.Settings.GlobalDefault())
	res.Preset = name
	switch source {
	case preset.SourceNone:
		res.Outcome = OutcomeNone
		return res, nil
	case preset.SourceSelection:
		res.Outcome = OutcomeSelectionKept
		return res, nil
	case preset.SourceLock:
		if !ok {
			res.Outcome = OutcomeLockMissing
			c.logger.Warn("locked preset not found", "preset", name)
			c.cfg.Dialog.Notify(ui.LevelWarning, fmt.Sprintf("Locked preset %q not found", name))
			return res, nil
		}
		if preset.SameName(registry.Current(), p.Name) {
			res.Outcome = OutcomeUnchanged
			return res, nil
		}
		res.Outcome = OutcomeLockApplied
	case preset.SourceDefault:
		if !ok {
			res.Outcome = OutcomeDefaultMissing
			c.logger.Warn("global default preset not found", "preset", name)
			c.cfg.Dialog.Notify(ui.LevelWarning, fmt.Sprintf("Global default preset %q not found", name))
			return res, nil
		}
		res.Outcome = OutcomeDefaultApplied
	default:
		return res, fmt.Errorf("unknown preset source %q", source)
	}

	report, err := c.cfg.Activation.Activate(ctx, &p, true)
	if err != nil {
		return res, err
	}
	res.Report = &report
	if flags.ShowLockNotifications {
		msg := fmt.Sprintf("Applied locked preset %q", p.Name)
		if source == preset.SourceDefault {
			msg = fmt.Sprintf("Applied global default preset %q", p.Name)
		}
		c.cfg.Dialog.Notify(ui.LevelInfo, msg)
	}
	return res, nil
}

// WiPreset is the wipreset command: an empty name deactivates, anything
// else activates by case-insensitive name and warns on a miss.
func (c *Controller) WiPreset(ctx context.Context, name string) (activation.Report, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.cfg.Activation.Deactivate(ctx, false)
	}
	report, _, err := c.cfg.Activation.ActivateByName(ctx, name)
	return report, err
}

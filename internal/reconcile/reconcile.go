// Package reconcile spots probable book renames in successive book-list
// snapshots and offers to carry them into preset book lists.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/metrics"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// DefaultThrottle is the minimum spacing between two diffs.
const DefaultThrottle = time.Second

// Proposal is a detected rename and what became of it.
type Proposal struct {
	From     string   `json:"from" yaml:"from"`
	To       string   `json:"to" yaml:"to"`
	Presets  []string `json:"presets" yaml:"presets"`
	Accepted bool     `json:"accepted" yaml:"accepted"`
}

// Reconciler diffs book-list snapshots against the last one it accepted.
type Reconciler struct {
	registry *preset.Registry
	dialog   ui.Dialog
	observer *metrics.Observer
	logger   *slog.Logger
	throttle time.Duration
	now      func() time.Time
	onChange func()

	mu       sync.Mutex
	baseline []string
	primed   bool
	last     time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithThrottle sets the minimum spacing between diffs.
func WithThrottle(d time.Duration) Option {
	return func(r *Reconciler) { r.throttle = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithObserver(o *metrics.Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithOnChange runs after presets were rewritten.
func WithOnChange(fn func()) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// New creates a reconciler.
func New(registry *preset.Registry, dialog ui.Dialog, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry: registry,
		dialog:   dialog,
		logger:   slog.Default(),
		throttle: DefaultThrottle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Detect reports a rename when exactly one name disappeared and exactly one
// appeared between before and after. Any other shape is not a rename.
func Detect(before, after []string) (from, to string, ok bool) {
	var removed, added []string
	for _, b := range before {
		if !slices.Contains(after, b) && !slices.Contains(removed, b) {
			removed = append(removed, b)
		}
	}
	for _, b := range after {
		if !slices.Contains(before, b) && !slices.Contains(added, b) {
			added = append(added, b)
		}
	}
	if len(removed) != 1 || len(added) != 1 {
		return "", "", false
	}
	return removed[0], added[0], true
}

// Observe takes a new snapshot of book names. The first snapshot only sets
// the baseline. Snapshots arriving inside the throttle window are dropped
// without moving the baseline, so the next accepted one still sees the
// change. It returns the proposal made, if any.
func (r *Reconciler) Observe(ctx context.Context, names []string) (Proposal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.primed {
		r.primed = true
		r.last = now
		r.baseline = slices.Clone(names)
		return Proposal{}, false
	}
	if now.Sub(r.last) < r.throttle {
		return Proposal{}, false
	}
	r.last = now

	before := r.baseline
	r.baseline = slices.Clone(names)

	from, to, ok := Detect(before, names)
	if !ok {
		return Proposal{}, false
	}
	affected := r.registry.ReferencingBook(from)
	if len(affected) == 0 {
		r.logger.Debug("book renamed, no preset affected", "from", from, "to", to)
		return Proposal{}, false
	}

	p := Proposal{From: from, To: to, Presets: affected}
	question := fmt.Sprintf("Book %q looks like it was renamed to %q. Update the presets that use it (%s)?",
		from, to, strings.Join(affected, ", "))
	p.Accepted = r.dialog.Confirm(ctx, question)
	r.observer.RenameProposal(p.Accepted)
	if !p.Accepted {
		r.logger.Info("book rename declined", "from", from, "to", to)
		return p, true
	}

	touched := r.registry.RenameBook(from, to)
	r.logger.Info("book rename applied", "from", from, "to", to, "presets", touched)
	r.dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Updated %d preset(s) to use %q", len(touched), to))
	if r.onChange != nil {
		r.onChange()
	}
	return p, true
}

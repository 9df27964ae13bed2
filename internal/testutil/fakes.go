// Package testutil holds in-memory collaborators for tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/books"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/engine"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// Books is an in-memory books.Repository that records every operation.
type Books struct {
	mu       sync.Mutex
	files    map[string]json.RawMessage
	active   []string
	Ops      []string
	FailOn   map[string]bool
	BeforeOp func(op, name string)
}

// NewBooks creates a repository holding the named books, with active loaded.
func NewBooks(names []string, active ...string) *Books {
	b := &Books{files: map[string]json.RawMessage{}, FailOn: map[string]bool{}}
	for _, n := range names {
		b.files[n] = json.RawMessage(fmt.Sprintf(`{"name":%q,"entries":{}}`, n))
	}
	b.active = slices.Clone(active)
	return b
}

var _ books.Repository = (*Books)(nil)

func (b *Books) List(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := slices.Collect(maps.Keys(b.files))
	sort.Strings(names)
	return names, nil
}

func (b *Books) Active(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.active), nil
}

func (b *Books) record(op, name string) error {
	if b.BeforeOp != nil {
		b.BeforeOp(op, name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Ops = append(b.Ops, op+":"+name)
	if b.FailOn[name] {
		return fmt.Errorf("%s %s: injected failure", op, name)
	}
	return nil
}

func (b *Books) Load(ctx context.Context, name string) error {
	if err := b.record("load", name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.files[name]; !ok {
		return fmt.Errorf("%w: %s", books.ErrBookNotFound, name)
	}
	if !slices.Contains(b.active, name) {
		b.active = append(b.active, name)
	}
	return nil
}

func (b *Books) Unload(ctx context.Context, name string) error {
	if err := b.record("unload", name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.active, name); i >= 0 {
		b.active = slices.Delete(b.active, i, i+1)
	}
	return nil
}

func (b *Books) Fetch(ctx context.Context, name string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", books.ErrBookNotFound, name)
	}
	return data, nil
}

func (b *Books) Import(ctx context.Context, name string, data json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = data
	b.Ops = append(b.Ops, "import:"+name)
	return nil
}

// ResetOps clears the operation log.
func (b *Books) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Ops = nil
}

// Notice is one recorded notification.
type Notice struct {
	Level   ui.Level
	Message string
}

// Dialog answers confirmations and prompts from scripts and records
// everything it was asked.
type Dialog struct {
	mu       sync.Mutex
	Confirms []bool
	// Prompts are answers in order; a nil entry dismisses the prompt.
	Prompts []*string
	Asked   []string
	Notices []Notice
	// DefaultConfirm answers once Confirms runs out.
	DefaultConfirm bool
}

var _ ui.Dialog = (*Dialog)(nil)

// Answer is a helper for building Prompts.
func Answer(s string) *string { return &s }

func (d *Dialog) Confirm(ctx context.Context, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Asked = append(d.Asked, content)
	if len(d.Confirms) == 0 {
		return d.DefaultConfirm
	}
	v := d.Confirms[0]
	d.Confirms = d.Confirms[1:]
	return v
}

func (d *Dialog) Prompt(ctx context.Context, content, def string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Asked = append(d.Asked, content)
	if len(d.Prompts) == 0 {
		return "", false
	}
	v := d.Prompts[0]
	d.Prompts = d.Prompts[1:]
	if v == nil {
		return "", false
	}
	return *v, true
}

func (d *Dialog) Notify(level ui.Level, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Notices = append(d.Notices, Notice{Level: level, Message: message})
}

// NoticesAt returns the messages recorded at level.
func (d *Dialog) NoticesAt(level ui.Level) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, n := range d.Notices {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Patcher records engine patches and reports every key applied.
type Patcher struct {
	mu      sync.Mutex
	Patches []map[string]any
	Values  map[string]any
	Fail    []string
}

var _ engine.Patcher = (*Patcher)(nil)

func (p *Patcher) Apply(ctx context.Context, patch map[string]any) (engine.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Patches = append(p.Patches, maps.Clone(patch))
	res := engine.Result{Failed: slices.Clone(p.Fail)}
	for k := range patch {
		if !slices.Contains(p.Fail, k) {
			res.Applied = append(res.Applied, k)
		}
	}
	sort.Strings(res.Applied)
	res.Success = len(res.Failed) == 0
	return res, nil
}

func (p *Patcher) Capture(ctx context.Context, keys ...string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(keys) == 0 {
		return maps.Clone(p.Values), nil
	}
	out := map[string]any{}
	for _, k := range keys {
		if v, ok := p.Values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Timer fires immediately and counts how often it was asked to wait.
type Timer struct {
	mu    sync.Mutex
	Waits []time.Duration
}

// After satisfies retry-go's Timer.
func (t *Timer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.Waits = append(t.Waits, d)
	t.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// Count returns the number of waits.
func (t *Timer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Waits)
}

// Clock is a manual time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock { return &Clock{t: time.Unix(1_700_000_000, 0)} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Chat is in-memory chat metadata.
type Chat struct {
	mu     sync.Mutex
	Fields map[string]string
	Saves  int
}

// NewChat creates empty chat metadata.
func NewChat() *Chat { return &Chat{Fields: map[string]string{}} }

func (c *Chat) ChatField(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Fields[key]
}

func (c *Chat) SetChatField(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.Fields, key)
		return
	}
	c.Fields[key] = value
}

func (c *Chat) SaveChatMetadata() {
	c.mu.Lock()
	c.Saves++
	c.mu.Unlock()
}

// Contexts hands out a settable conversation identity. While Unavailable
// is positive each Current call returns an empty context and decrements it.
type Contexts struct {
	mu            sync.Mutex
	ctx           hostctx.Context
	Unavailable   int
	Invalidations int
}

// NewContexts starts from ctx.
func NewContexts(ctx hostctx.Context) *Contexts { return &Contexts{ctx: ctx} }

func (c *Contexts) Current() hostctx.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Unavailable > 0 {
		c.Unavailable--
		return hostctx.Context{}
	}
	return c.ctx
}

func (c *Contexts) Invalidate() {
	c.mu.Lock()
	c.Invalidations++
	c.mu.Unlock()
}

// Set replaces the identity.
func (c *Contexts) Set(ctx hostctx.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// Package hostctx resolves the identity of the current conversation:
// which character or group is active and which chat is open.
package hostctx

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultCacheDuration collapses bursts of lookups into one computation.
const DefaultCacheDuration = 100 * time.Millisecond

// Names the host uses for speakers that are not characters.
const (
	SystemUserName       = "SillyTavern System"
	NeutralCharacterName = "Assistant"
)

// Group is one entry of the host's group list.
type Group struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	ChatID string `yaml:"chat_id" json:"chat_id"`
}

// ChatMetadata is the subset of per-chat metadata identity resolution reads.
type ChatMetadata struct {
	FileName      string
	CharacterName string
}

// Source exposes the volatile host state.
type Source interface {
	// SelectedGroup returns the selected group id, "" outside group chats.
	SelectedGroup() string
	Group(id string) (Group, bool)
	// CharacterName returns the host's current display name.
	CharacterName() string
	ChatID() string
	ChatMetadata() ChatMetadata
}

// Context identifies the conversation locks are keyed on. Empty strings mean
// absent. In a group chat CharacterName is never set.
type Context struct {
	CharacterName string `json:"character_name,omitempty" yaml:"character_name,omitempty"`
	ChatID        string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	IsGroupChat   bool   `json:"is_group_chat" yaml:"is_group_chat"`
	GroupID       string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	GroupName     string `json:"group_name,omitempty" yaml:"group_name,omitempty"`
}

// HasIdentity reports whether enough host data has loaded to key locks.
func (c Context) HasIdentity() bool {
	if c.IsGroupChat {
		return c.GroupID != ""
	}
	return c.CharacterName != "" || c.ChatID != ""
}

// Normalize trims and NFC-normalizes a lock key. Lock keys are compared by
// exact string equality, so every key passes through here.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Resolver computes the Context and memoizes it for a short window.
type Resolver struct {
	source   Source
	duration time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cached   Context
	cachedAt time.Time
	valid    bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheDuration overrides DefaultCacheDuration.
func WithCacheDuration(d time.Duration) Option {
	return func(r *Resolver) { r.duration = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver reading from source.
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:   source,
		duration: DefaultCacheDuration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the memoized context, recomputing once the window lapses.
func (r *Resolver) Current() Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.valid && now.Sub(r.cachedAt) < r.duration {
		return r.cached
	}
	r.cached = r.compute()
	r.cachedAt = now
	r.valid = true
	return r.cached
}

// Invalidate drops the memo. Callers invoke it on every event that can
// change character, chat or group identity.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

func (r *Resolver) compute() Context {
	meta := r.source.ChatMetadata()

	if groupID := Normalize(r.source.SelectedGroup()); groupID != "" {
		ctx := Context{IsGroupChat: true, GroupID: groupID}
		if g, ok := r.source.Group(groupID); ok {
			ctx.GroupName = Normalize(g.Name)
			ctx.ChatID = Normalize(g.ChatID)
		}
		if ctx.ChatID == "" {
			ctx.ChatID = Normalize(meta.FileName)
		}
		return ctx
	}

	ctx := Context{ChatID: Normalize(r.source.ChatID())}
	if ctx.ChatID == "" {
		ctx.ChatID = Normalize(meta.FileName)
	}
	name := Normalize(r.source.CharacterName())
	if name == "" || name == SystemUserName || name == NeutralCharacterName {
		name = Normalize(meta.CharacterName)
	}
	ctx.CharacterName = name
	return ctx
}

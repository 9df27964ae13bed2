package locks

import (
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
)

// Kind names the lock category that won resolution.
type Kind string

const (
	KindNone      Kind = ""
	KindChat      Kind = "chat"
	KindCharacter Kind = "character"
	KindGroup     Kind = "group"
)

// ContextSource yields the current conversation identity.
type ContextSource interface {
	Current() hostctx.Context
}

// Resolution is the full outcome of a lock lookup.
type Resolution struct {
	Context hostctx.Context `json:"context" yaml:"context"`
	// ChatLock and ContextLock are post-gate: a disabled category reads "".
	ChatLock    string `json:"chat_lock,omitempty" yaml:"chat_lock,omitempty"`
	ContextLock string `json:"context_lock,omitempty" yaml:"context_lock,omitempty"`
	ContextKind Kind   `json:"context_kind" yaml:"context_kind"`
	Lock        string `json:"lock,omitempty" yaml:"lock,omitempty"`
	Kind        Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// HasAny reports whether any gated lock is set, regardless of precedence.
func (r Resolution) HasAny() bool {
	return r.ChatLock != "" || r.ContextLock != ""
}

// Resolver applies lock precedence to the current context.
type Resolver struct {
	store    *Store
	contexts ContextSource
}

// NewResolver creates a lock resolver.
func NewResolver(store *Store, contexts ContextSource) *Resolver {
	return &Resolver{store: store, contexts: contexts}
}

// Store returns the underlying lock store.
func (r *Resolver) Store() *Store {
	return r.store
}

// Context returns the current conversation identity.
func (r *Resolver) Context() hostctx.Context {
	return r.contexts.Current()
}

// Resolve computes every lock component and the winner.
func (r *Resolver) Resolve() Resolution {
	ctx := r.contexts.Current()
	flags := r.store.Flags()
	res := Resolution{Context: ctx}

	if flags.EnableChatLocks {
		res.ChatLock = r.store.ChatLock()
	}
	if ctx.IsGroupChat {
		res.ContextKind = KindGroup
		if flags.EnableGroupLocks {
			res.ContextLock = r.store.GroupLock(ctx.GroupID)
		}
	} else {
		res.ContextKind = KindCharacter
		if flags.EnableCharacterLocks {
			res.ContextLock = r.store.CharacterLock(ctx.CharacterName)
		}
	}

	first, second := res.ContextLock, res.ChatLock
	firstKind, secondKind := res.ContextKind, KindChat
	if flags.PreferChatOverCharacterLocks {
		first, second = second, first
		firstKind, secondKind = secondKind, firstKind
	}
	switch {
	case first != "":
		res.Lock, res.Kind = first, firstKind
	case second != "":
		res.Lock, res.Kind = second, secondKind
	}
	return res
}

// LockForContext returns the winning preset name, or "".
func (r *Resolver) LockForContext() string {
	return r.Resolve().Lock
}

// HasAnyLocks reports whether a conflict prompt is relevant.
func (r *Resolver) HasAnyLocks() bool {
	return r.Resolve().HasAny()
}

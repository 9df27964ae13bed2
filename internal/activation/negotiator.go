package activation

import (
	"context"
	"fmt"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/metrics"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// Negotiator handles a manual switch away from a locked preset. It only
// ever moves locks that are already engaged and enabled; it never creates
// one.
type Negotiator struct {
	store    *locks.Store
	dialog   ui.Dialog
	observer *metrics.Observer
}

// NewNegotiator creates a negotiator.
func NewNegotiator(store *locks.Store, dialog ui.Dialog, observer *metrics.Observer) *Negotiator {
	return &Negotiator{store: store, dialog: dialog, observer: observer}
}

// Negotiate asks whether the engaged locks should follow the user to target
// ("" for no preset) and retargets them if so. It reports the answer; the
// caller activates target either way.
func (n *Negotiator) Negotiate(ctx context.Context, res locks.Resolution, target string) bool {
	scope := "This chat"
	switch res.Kind {
	case locks.KindCharacter:
		scope = fmt.Sprintf("Character %q", res.Context.CharacterName)
	case locks.KindGroup:
		scope = "This group"
		if res.Context.GroupName != "" {
			scope = fmt.Sprintf("Group %q", res.Context.GroupName)
		}
	}
	question := fmt.Sprintf("%s is locked to preset %q. Update the lock to %q?",
		scope, res.Lock, preset.Label(target))

	accepted := n.dialog.Confirm(ctx, question)
	n.observer.LockConflict(accepted)
	if !accepted {
		return false
	}

	// res is post-gate, so a disabled category is never touched.
	if res.ChatLock != "" {
		n.store.SetChatLock(target)
	}
	if res.ContextLock != "" {
		switch res.ContextKind {
		case locks.KindGroup:
			n.store.SetGroupLock(res.Context.GroupID, target)
		case locks.KindCharacter:
			n.store.SetCharacterLock(res.Context.CharacterName, target)
		}
	}

	if n.store.Flags().ShowLockNotifications {
		n.dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Lock updated to %s", preset.Label(target)))
	}
	return true
}

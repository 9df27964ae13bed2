package activation

import (
	"fmt"
	"testing"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/settings"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/testutil"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

func TestNegotiator_GroupChat(t *testing.T) {
	doc := settings.Default()
	doc.ShowLockNotifications = false
	st := settings.New(doc, "")
	st.SetCharacterLock("Seraphina", "Explore")
	st.SetGroupLock("g-1", "Explore")

	chat := testutil.NewChat()
	store := locks.NewStore(chat, st)
	group := hostctx.Context{ChatID: "c", IsGroupChat: true, GroupID: "g-1", GroupName: "Party"}
	res := locks.NewResolver(store, testutil.NewContexts(group)).Resolve()

	dialog := &testutil.Dialog{Confirms: []bool{true}}
	if !NewNegotiator(store, dialog, nil).Negotiate(t.Context(), res, "Combat") {
		t.Fatal("Negotiate() = false, want true")
	}
	if got := st.GroupLock("g-1"); got != "Combat" {
		t.Errorf("group lock = %q", got)
	}
	if got := st.CharacterLock("Seraphina"); got != "Explore" {
		t.Errorf("character lock touched in a group chat: %q", got)
	}
	if chat.Saves != 0 {
		t.Error("chat lock was not engaged and must not be written")
	}
	if len(dialog.NoticesAt(ui.LevelSuccess)) != 0 {
		t.Error("notifications are disabled")
	}
}

func TestNegotiator_DismissedChangesNothing(t *testing.T) {
	st := settings.New(settings.Default(), "")
	chat := testutil.NewChat()
	store := locks.NewStore(chat, st)
	store.SetChatLock("Explore")
	res := locks.NewResolver(store, testutil.NewContexts(hostctx.Context{CharacterName: "Lilac", ChatID: "c"})).Resolve()

	dialog := &testutil.Dialog{}
	if NewNegotiator(store, dialog, nil).Negotiate(t.Context(), res, "") {
		t.Fatal("Negotiate() = true on dismissal")
	}
	if got := store.ChatLock(); got != "Explore" {
		t.Errorf("chat lock = %q", got)
	}
}

func TestNegotiator_DisabledChatLockIsDormant(t *testing.T) {
	doc := settings.Default()
	doc.EnableChatLocks = false
	st := settings.New(doc, "")
	store := locks.NewStore(testutil.NewChat(), st)
	store.SetChatLock("Combat")
	store.SetCharacterLock("Seraphina", "Explore")
	res := locks.NewResolver(store, testutil.NewContexts(hostctx.Context{CharacterName: "Seraphina", ChatID: "c"})).Resolve()

	dialog := &testutil.Dialog{Confirms: []bool{true}}
	if !NewNegotiator(store, dialog, nil).Negotiate(t.Context(), res, "Other") {
		t.Fatal("Negotiate() = false, want true")
	}
	if got := store.ChatLock(); got != "Combat" {
		t.Errorf("disabled chat lock = %q, want it untouched", got)
	}
	if got := store.CharacterLock("Seraphina"); got != "Other" {
		t.Errorf("character lock = %q", got)
	}
}

func TestNegotiator_GatesAndPresence(t *testing.T) {
	for _, group := range []bool{false, true} {
		for mask := 0; mask < 16; mask++ {
			chatEnabled, contextEnabled := mask&1 != 0, mask&2 != 0
			chatSet, contextSet := mask&4 != 0, mask&8 != 0
			name := fmt.Sprintf("group=%v chat(enabled=%v set=%v) context(enabled=%v set=%v)",
				group, chatEnabled, chatSet, contextEnabled, contextSet)

			t.Run(name, func(t *testing.T) {
				doc := settings.Default()
				doc.EnableChatLocks = chatEnabled
				doc.EnableCharacterLocks = contextEnabled
				doc.EnableGroupLocks = contextEnabled
				st := settings.New(doc, "")
				store := locks.NewStore(testutil.NewChat(), st)

				current := hostctx.Context{CharacterName: "Seraphina", ChatID: "c"}
				if group {
					current = hostctx.Context{ChatID: "c", IsGroupChat: true, GroupID: "g-1"}
				}
				// The category that does not apply to this context is
				// always set and must never move.
				st.SetCharacterLock("Seraphina", "Old")
				st.SetGroupLock("g-1", "Old")
				if !contextSet {
					if group {
						st.SetGroupLock("g-1", "")
					} else {
						st.SetCharacterLock("Seraphina", "")
					}
				}
				if chatSet {
					store.SetChatLock("Old")
				}

				res := locks.NewResolver(store, testutil.NewContexts(current)).Resolve()
				dialog := &testutil.Dialog{Confirms: []bool{true}}
				NewNegotiator(store, dialog, nil).Negotiate(t.Context(), res, "New")

				want := func(set, enabled bool) string {
					switch {
					case set && enabled:
						return "New"
					case set:
						return "Old"
					}
					return ""
				}
				if got := store.ChatLock(); got != want(chatSet, chatEnabled) {
					t.Errorf("chat lock = %q", got)
				}
				contextLock, otherLock := st.CharacterLock("Seraphina"), st.GroupLock("g-1")
				if group {
					contextLock, otherLock = otherLock, contextLock
				}
				if contextLock != want(contextSet, contextEnabled) {
					t.Errorf("context lock = %q", contextLock)
				}
				if otherLock != "Old" {
					t.Errorf("lock outside this context = %q", otherLock)
				}
			})
		}
	}
}

// Package locks stores chat, character and group preset locks and decides
// which one applies to the current conversation.
package locks

import (
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/settings"
)

// ChatLockKey is the chat metadata field holding the chat lock.
const ChatLockKey = "world_info_preset_lock"

// ChatMetadata is the currently loaded chat's metadata blob.
type ChatMetadata interface {
	ChatField(key string) string
	// SetChatField stores value; "" removes the field.
	SetChatField(key, value string)
	// SaveChatMetadata schedules a debounced save of the chat.
	SaveChatMetadata()
}

// SettingsBackend persists character and group locks. *settings.Store
// implements it.
type SettingsBackend interface {
	CharacterLock(character string) string
	SetCharacterLock(character, presetName string)
	GroupLock(groupID string) string
	SetGroupLock(groupID, presetName string)
	Flags() settings.Flags
}

// Store reads and writes the three lock relations.
type Store struct {
	chat     ChatMetadata
	settings SettingsBackend
}

// NewStore creates a lock store.
func NewStore(chat ChatMetadata, backend SettingsBackend) *Store {
	return &Store{chat: chat, settings: backend}
}

// ChatLock returns the lock on the open chat, or "".
func (s *Store) ChatLock() string {
	if s.chat == nil {
		return ""
	}
	return s.chat.ChatField(ChatLockKey)
}

// SetChatLock locks the open chat to presetName; "" unlocks it.
func (s *Store) SetChatLock(presetName string) {
	if s.chat == nil {
		return
	}
	s.chat.SetChatField(ChatLockKey, presetName)
	s.chat.SaveChatMetadata()
}

// CharacterLock returns the lock for character, or "".
func (s *Store) CharacterLock(character string) string {
	character = hostctx.Normalize(character)
	if character == "" {
		return ""
	}
	return s.settings.CharacterLock(character)
}

// SetCharacterLock is a no-op for an empty character.
func (s *Store) SetCharacterLock(character, presetName string) {
	character = hostctx.Normalize(character)
	if character == "" {
		return
	}
	s.settings.SetCharacterLock(character, presetName)
}

// GroupLock returns the lock for the group id, or "".
func (s *Store) GroupLock(groupID string) string {
	if groupID == "" {
		return ""
	}
	return s.settings.GroupLock(groupID)
}

// SetGroupLock is a no-op for an empty group id.
func (s *Store) SetGroupLock(groupID, presetName string) {
	if groupID == "" {
		return
	}
	s.settings.SetGroupLock(groupID, presetName)
}

// Flags returns the gates the resolver honors.
func (s *Store) Flags() settings.Flags {
	return s.settings.Flags()
}

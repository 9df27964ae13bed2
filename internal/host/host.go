// Package host keeps the chat application's volatile state in a YAML file:
// the current character, the selected group, the open chat and per-chat
// metadata. It is the context source and the chat lock sink for the CLI.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
)

// Chat metadata keys read by context resolution.
const (
	MetaFileName      = "file_name"
	MetaCharacterName = "character_name"
)

// State is the persisted document.
type State struct {
	Character     string                       `yaml:"character,omitempty"`
	SelectedGroup string                       `yaml:"selected_group,omitempty"`
	ChatID        string                       `yaml:"chat_id,omitempty"`
	Groups        []hostctx.Group              `yaml:"groups,omitempty"`
	Chats         map[string]map[string]string `yaml:"chats,omitempty"`
}

// Host is the file-backed host state.
type Host struct {
	mu     sync.RWMutex
	path   string
	state  State
	logger *slog.Logger

	debounce time.Duration
	saveMu   sync.Mutex
	timer    *time.Timer
	dirty    bool
}

var (
	_ hostctx.Source     = (*Host)(nil)
	_ locks.ChatMetadata = (*Host)(nil)
)

// Option configures a Host.
type Option func(*Host)

// WithDebounce delays chat metadata saves. Zero saves synchronously.
func WithDebounce(d time.Duration) Option {
	return func(h *Host) { h.debounce = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// Open loads path; a missing file starts empty. An empty path keeps the
// state in memory.
func Open(path string, opts ...Option) (*Host, error) {
	h := &Host{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if path == "" {
		return h, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read host state: %w", err)
	default:
		if err := yaml.Unmarshal(data, &h.state); err != nil {
			return nil, fmt.Errorf("failed to parse host state %s: %w", path, err)
		}
	}
	return h, nil
}

// Snapshot returns a copy of the state.
func (h *Host) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.state
	out.Groups = slices.Clone(h.state.Groups)
	out.Chats = make(map[string]map[string]string, len(h.state.Chats))
	for k, v := range h.state.Chats {
		out.Chats[k] = maps.Clone(v)
	}
	return out
}

func (h *Host) SelectedGroup() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.SelectedGroup
}

func (h *Host) Group(id string) (hostctx.Group, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.group(id)
}

func (h *Host) group(id string) (hostctx.Group, bool) {
	for _, g := range h.state.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return hostctx.Group{}, false
}

func (h *Host) CharacterName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Character
}

func (h *Host) ChatID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.ChatID
}

// openChat is the key of the chat whose metadata is live: the group's own
// chat in a group chat, the selected chat otherwise.
func (h *Host) openChat() string {
	if h.state.SelectedGroup != "" {
		if g, ok := h.group(h.state.SelectedGroup); ok && g.ChatID != "" {
			return g.ChatID
		}
	}
	return h.state.ChatID
}

func (h *Host) ChatMetadata() hostctx.ChatMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	meta := h.state.Chats[h.openChat()]
	return hostctx.ChatMetadata{
		FileName:      meta[MetaFileName],
		CharacterName: meta[MetaCharacterName],
	}
}

// ChatField reads one field of the open chat's metadata.
func (h *Host) ChatField(key string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Chats[h.openChat()][key]
}

// SetChatField writes one field of the open chat's metadata; "" removes it.
// Without an open chat it does nothing.
func (h *Host) SetChatField(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chat := h.openChat()
	if chat == "" {
		return
	}
	meta := h.state.Chats[chat]
	if value == "" {
		delete(meta, key)
		if len(meta) == 0 {
			delete(h.state.Chats, chat)
		}
		return
	}
	if h.state.Chats == nil {
		h.state.Chats = map[string]map[string]string{}
	}
	if meta == nil {
		meta = map[string]string{}
		h.state.Chats[chat] = meta
	}
	meta[key] = value
}

// SaveChatMetadata schedules a debounced save.
func (h *Host) SaveChatMetadata() {
	h.Save()
}

// SetCharacter selects a character and leaves any group chat.
func (h *Host) SetCharacter(name string) {
	h.mu.Lock()
	h.state.Character = name
	h.state.SelectedGroup = ""
	h.mu.Unlock()
	h.Save()
}

// SetGroup enters the group chat id; "" leaves group chat.
func (h *Host) SetGroup(id string) error {
	h.mu.Lock()
	if _, ok := h.group(id); id != "" && !ok {
		h.mu.Unlock()
		return fmt.Errorf("unknown group %q", id)
	}
	h.state.SelectedGroup = id
	h.mu.Unlock()
	h.Save()
	return nil
}

// SetChat opens chat id. The chat's metadata records the file name and, for
// one-on-one chats, the character it belongs to.
func (h *Host) SetChat(id string) {
	h.mu.Lock()
	h.state.ChatID = id
	if id != "" {
		if h.state.Chats == nil {
			h.state.Chats = map[string]map[string]string{}
		}
		meta := h.state.Chats[id]
		if meta == nil {
			meta = map[string]string{}
			h.state.Chats[id] = meta
		}
		meta[MetaFileName] = id
		if h.state.SelectedGroup == "" && h.state.Character != "" {
			meta[MetaCharacterName] = h.state.Character
		}
	}
	h.mu.Unlock()
	h.Save()
}

// PutGroup adds or replaces a group by id.
func (h *Host) PutGroup(g hostctx.Group) {
	h.mu.Lock()
	i := slices.IndexFunc(h.state.Groups, func(x hostctx.Group) bool { return x.ID == g.ID })
	if i >= 0 {
		h.state.Groups[i] = g
	} else {
		h.state.Groups = append(h.state.Groups, g)
	}
	h.mu.Unlock()
	h.Save()
}

// Reload re-reads the file after an outside edit and reports whether the
// character, group or chat selection changed. Pending saves win.
func (h *Host) Reload() (bool, error) {
	if h.path == "" {
		return false, nil
	}
	h.saveMu.Lock()
	dirty := h.dirty
	h.saveMu.Unlock()
	if dirty {
		return false, nil
	}
	fresh, err := Open(h.path)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.state
	h.state = fresh.state
	changed := old.Character != h.state.Character ||
		old.SelectedGroup != h.state.SelectedGroup ||
		old.ChatID != h.state.ChatID
	return changed, nil
}

// Path returns the backing file, "" for in-memory state.
func (h *Host) Path() string {
	return h.path
}

// Save schedules a debounced write.
func (h *Host) Save() {
	if h.path == "" {
		return
	}
	if h.debounce <= 0 {
		if err := h.write(); err != nil {
			h.logger.Error("failed to save host state", "path", h.path, "error", err)
		}
		return
	}
	h.saveMu.Lock()
	defer h.saveMu.Unlock()
	h.dirty = true
	if h.timer != nil {
		h.timer.Reset(h.debounce)
		return
	}
	h.timer = time.AfterFunc(h.debounce, func() {
		if err := h.Flush(); err != nil {
			h.logger.Error("failed to save host state", "path", h.path, "error", err)
		}
	})
}

// Flush writes a pending save now.
func (h *Host) Flush() error {
	h.saveMu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	dirty := h.dirty
	h.dirty = false
	h.saveMu.Unlock()
	if !dirty {
		return nil
	}
	return h.write()
}

func (h *Host) write() error {
	data, err := yaml.Marshal(h.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal host state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, h.path)
}

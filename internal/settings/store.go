package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
)

// ErrUnknownFlag is returned by SetFlag for names outside FlagNames.
var ErrUnknownFlag = errors.New("unknown settings flag")

// Store is the single owner of the settings root. Every mutation goes through
// a method that schedules a debounced save.
type Store struct {
	mu             sync.RWMutex
	path           string
	registry       *preset.Registry
	characterLocks map[string]string
	groupLocks     map[string]string
	globalDefault  string
	flags          Flags

	debounce time.Duration
	timer    *time.Timer
	dirty    bool
	saveMu   sync.Mutex
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets the save delay. Zero saves synchronously.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithLogger sets the logger used for background save failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open loads settings from path, or starts from Default if the file does
// not exist. An empty path keeps everything in memory.
func Open(path string, opts ...Option) (*Store, error) {
	doc := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read settings: %w", err)
		default:
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
			}
		}
	}
	return New(doc, path, opts...), nil
}

// New wraps an in-memory document.
func New(doc Settings, path string, opts ...Option) *Store {
	s := &Store{
		path:           path,
		characterLocks: cloneMap(doc.CharacterLocks),
		groupLocks:     cloneMap(doc.GroupLocks),
		globalDefault:  doc.GlobalDefaultPreset,
		flags:          doc.Flags,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = preset.NewRegistry(doc.PresetList, doc.PresetName, s.Save)
	return s
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}

// Registry returns the preset registry. Its mutations are persisted too.
func (s *Store) Registry() *preset.Registry {
	return s.registry
}

// Snapshot returns a copy of the whole document.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{
		PresetList:          s.registry.All(),
		PresetName:          s.registry.Current(),
		CharacterLocks:      maps.Clone(s.characterLocks),
		GroupLocks:          maps.Clone(s.groupLocks),
		GlobalDefaultPreset: s.globalDefault,
		Flags:               s.flags,
	}
}

// Flags returns the current toggles.
func (s *Store) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// SetFlag sets one toggle by its persisted name.
func (s *Store) SetFlag(name string, value bool) error {
	s.mu.Lock()
	ptr := s.flags.field(name)
	if ptr == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	*ptr = value
	s.mu.Unlock()
	s.Save()
	return nil
}

// CharacterLock returns the preset locked to character, or "".
func (s *Store) CharacterLock(character string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.characterLocks[character]
}

// SetCharacterLock stores or, for an empty preset name, removes a lock.
// An empty character is ignored.
func (s *Store) SetCharacterLock(character, presetName string) {
	if character == "" {
		return
	}
	s.mu.Lock()
	setOrDelete(s.characterLocks, character, presetName)
	s.mu.Unlock()
	s.Save()
}

// GroupLock returns the preset locked to the group id, or "".
func (s *Store) GroupLock(groupID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupLocks[groupID]
}

// SetGroupLock stores or removes a group lock. Groups are keyed by id so the
// lock survives a group rename.
func (s *Store) SetGroupLock(groupID, presetName string) {
	if groupID == "" {
		return
	}
	s.mu.Lock()
	setOrDelete(s.groupLocks, groupID, presetName)
	s.mu.Unlock()
	s.Save()
}

func setOrDelete(m map[string]string, key, value string) {
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}

// CharacterLocks returns a copy of every character lock.
func (s *Store) CharacterLocks() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.characterLocks)
}

// GroupLocks returns a copy of every group lock.
func (s *Store) GroupLocks() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.groupLocks)
}

// MergeCharacterLocks copies locks in, overwriting existing keys.
func (s *Store) MergeCharacterLocks(locks map[string]string) {
	s.mu.Lock()
	for k, v := range locks {
		setOrDelete(s.characterLocks, k, v)
	}
	s.mu.Unlock()
	s.Save()
}

// MergeGroupLocks copies group locks in, overwriting existing keys.
func (s *Store) MergeGroupLocks(locks map[string]string) {
	s.mu.Lock()
	for k, v := range locks {
		setOrDelete(s.groupLocks, k, v)
	}
	s.mu.Unlock()
	s.Save()
}

// RetargetLocks rewrites every character lock, group lock and the global
// default that name oldName, compared case-insensitively. An empty newName removes them. It returns the
// number of references changed.
func (s *Store) RetargetLocks(oldName, newName string) int {
	s.mu.Lock()
	n := 0
	for _, m := range []map[string]string{s.characterLocks, s.groupLocks} {
		for k, v := range m {
			if preset.SameName(v, oldName) {
				setOrDelete(m, k, newName)
				n++
			}
		}
	}
	if s.globalDefault != "" && preset.SameName(s.globalDefault, oldName) {
		s.globalDefault = newName
		n++
	}
	s.mu.Unlock()
	if n > 0 {
		s.Save()
	}
	return n
}

// LocksFor returns the character and group locks pointing at presetName.
func (s *Store) LocksFor(presetName string) (characters, groups map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	characters = map[string]string{}
	groups = map[string]string{}
	for k, v := range s.characterLocks {
		if preset.SameName(v, presetName) {
			characters[k] = v
		}
	}
	for k, v := range s.groupLocks {
		if preset.SameName(v, presetName) {
			groups[k] = v
		}
	}
	return characters, groups
}

// GlobalDefault returns the fallback preset name, "" for none.
func (s *Store) GlobalDefault() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalDefault
}

// SetGlobalDefault replaces the fallback preset name.
func (s *Store) SetGlobalDefault(name string) {
	s.mu.Lock()
	s.globalDefault = name
	s.mu.Unlock()
	s.Save()
}

// Reload re-reads the file after an outside edit. It is skipped while a
// save of our own is pending so that unsaved changes are not lost.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	s.saveMu.Lock()
	dirty := s.dirty
	s.saveMu.Unlock()
	if dirty {
		return nil
	}
	reloaded, err := Open(s.path)
	if err != nil {
		return err
	}
	doc := reloaded.Snapshot()
	s.mu.Lock()
	s.characterLocks = cloneMap(doc.CharacterLocks)
	s.groupLocks = cloneMap(doc.GroupLocks)
	s.globalDefault = doc.GlobalDefaultPreset
	s.flags = doc.Flags
	s.mu.Unlock()
	s.registry.Replace(doc.PresetList, doc.PresetName)
	return nil
}

// Save schedules a debounced write. Repeated calls inside the window collapse
// into one write.
func (s *Store) Save() {
	if s.path == "" {
		return
	}
	if s.debounce <= 0 {
		if err := s.write(); err != nil {
			s.logger.Error("failed to save settings", "path", s.path, "error", err)
		}
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.dirty = true
	if s.timer != nil {
		s.timer.Reset(s.debounce)
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.logger.Error("failed to save settings", "path", s.path, "error", err)
		}
	})
}

// Flush writes a pending save now.
func (s *Store) Flush() error {
	s.saveMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.dirty
	s.dirty = false
	s.saveMu.Unlock()
	if !dirty {
		return nil
	}
	return s.write()
}

// write marshals the snapshot to a temp file and renames it over path.
func (s *Store) write() error {
	data, err := yaml.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Package lifecycle creates, updates, renames, deletes, exports and imports
// presets, keeping every lock and default reference in step.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/activation"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/books"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/engine"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/settings"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// ErrCancelled is returned when the user dismisses or declines a prompt
// that an operation cannot continue without.
var ErrCancelled = errors.New("cancelled")

// DefaultPresetName is offered when prompting for a new preset's name.
const DefaultPresetName = "New Preset"

// Config wires a Manager.
type Config struct {
	Settings   *settings.Store
	Locks      *locks.Store
	Activation *activation.Engine
	Books      books.Repository
	// Patcher may be nil; settings capture is then unavailable.
	Patcher engine.Patcher
	Dialog  ui.Dialog
	Logger  *slog.Logger
}

// Manager runs preset lifecycle operations. Expected failures are notified
// through the dialog and also returned as sentinel errors so a caller can
// pick an exit status.
type Manager struct {
	cfg      Config
	registry *preset.Registry
	logger   *slog.Logger
}

// New creates a lifecycle manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, registry: cfg.Settings.Registry(), logger: logger}
}

// CreateOptions controls Create.
type CreateOptions struct {
	// Name skips the prompt when set.
	Name string
	// CaptureSettings records engine settings with the books.
	CaptureSettings bool
	// SettingsKeys narrows the capture; empty means every key.
	SettingsKeys []string
}

// Create captures the live book selection as a new preset and makes it
// current. Names are not checked for collisions; lookups resolve duplicates
// to the newest preset.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (preset.Preset, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		answer, ok := m.cfg.Dialog.Prompt(ctx, "Preset name:", DefaultPresetName)
		name = strings.TrimSpace(answer)
		if !ok || name == "" {
			return preset.Preset{}, ErrCancelled
		}
	}

	live, err := m.cfg.Books.Active(ctx)
	if err != nil {
		return preset.Preset{}, fmt.Errorf("failed to read active books: %w", err)
	}
	p := preset.Preset{Name: name, Books: live}
	if opts.CaptureSettings {
		p.EngineSettings, err = m.capture(ctx, opts.SettingsKeys)
		if err != nil {
			return preset.Preset{}, err
		}
	}

	m.registry.Add(p)
	if _, err := m.cfg.Activation.Activate(ctx, &p, true); err != nil {
		return p, err
	}
	m.logger.Info("preset created", "preset", name, "books", len(live), "engine_settings", len(p.EngineSettings))
	m.cfg.Dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Preset %q created", name))
	return p, nil
}

func (m *Manager) capture(ctx context.Context, keys []string) (map[string]any, error) {
	if m.cfg.Patcher == nil {
		return nil, nil
	}
	values, err := m.cfg.Patcher.Capture(ctx, keys...)
	if err != nil {
		m.cfg.Dialog.Notify(ui.LevelError, fmt.Sprintf("Failed to capture world info settings: %v", err))
		return nil, fmt.Errorf("failed to capture engine settings: %w", err)
	}
	return values, nil
}

// Update overwrites the selected preset's books with the live selection,
// and its engine settings too when withSettings is set. With nothing
// selected it falls back to Create.
func (m *Manager) Update(ctx context.Context, withSettings bool) (preset.Preset, error) {
	current, ok := m.registry.CurrentPreset()
	if !ok {
		return m.Create(ctx, CreateOptions{CaptureSettings: withSettings})
	}

	live, err := m.cfg.Books.Active(ctx)
	if err != nil {
		return preset.Preset{}, fmt.Errorf("failed to read active books: %w", err)
	}
	var captured map[string]any
	if withSettings {
		if captured, err = m.capture(ctx, nil); err != nil {
			return preset.Preset{}, err
		}
	}

	err = m.registry.Update(current.Name, func(p *preset.Preset) {
		p.Books = live
		if withSettings {
			p.EngineSettings = captured
		}
	})
	if err != nil {
		return preset.Preset{}, err
	}
	updated, _ := m.registry.Find(current.Name)
	m.logger.Info("preset updated", "preset", current.Name, "books", len(live), "with_settings", withSettings)
	m.cfg.Dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Preset %q updated", current.Name))
	return updated, nil
}

// resolve finds name, or the current preset when name is empty.
func (m *Manager) resolve(name string) (preset.Preset, error) {
	if name == "" {
		if p, ok := m.registry.CurrentPreset(); ok {
			return p, nil
		}
		m.cfg.Dialog.Notify(ui.LevelWarning, "No preset selected")
		return preset.Preset{}, preset.ErrNotFound
	}
	p, ok := m.registry.Find(name)
	if !ok {
		m.cfg.Dialog.Notify(ui.LevelWarning, fmt.Sprintf("Preset %q not found", name))
		return preset.Preset{}, fmt.Errorf("%w: %s", preset.ErrNotFound, name)
	}
	return p, nil
}

// Rename renames a preset and carries the new name into the chat lock, every
// character and group lock, the global default and the current selection.
// An empty newName prompts for one.
func (m *Manager) Rename(ctx context.Context, name, newName string) error {
	p, err := m.resolve(name)
	if err != nil {
		return err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		answer, ok := m.cfg.Dialog.Prompt(ctx, "New preset name:", p.Name)
		newName = strings.TrimSpace(answer)
		if !ok || newName == "" {
			return ErrCancelled
		}
	}
	if newName == p.Name {
		return nil
	}
	if other, ok := m.registry.Find(newName); ok && m.registry.Index(other.Name) != m.registry.Index(p.Name) {
		m.cfg.Dialog.Notify(ui.LevelWarning, fmt.Sprintf("Preset %q already exists", other.Name))
		return fmt.Errorf("preset %q already exists", other.Name)
	}

	oldName := p.Name
	if err := m.registry.Update(oldName, func(p *preset.Preset) { p.Name = newName }); err != nil {
		return err
	}
	if preset.SameName(m.cfg.Locks.ChatLock(), oldName) {
		m.cfg.Locks.SetChatLock(newName)
	}
	refs := m.cfg.Settings.RetargetLocks(oldName, newName)
	if preset.SameName(m.registry.Current(), oldName) {
		m.registry.SetCurrent(newName)
	}

	m.logger.Info("preset renamed", "from", oldName, "to", newName, "references", refs)
	m.cfg.Dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Preset %q renamed to %q", oldName, newName))
	return nil
}

// Delete removes a preset after confirmation, strips every lock and the
// global default pointing at it, clears the selection and unloads every
// book. An empty name deletes the current preset.
func (m *Manager) Delete(ctx context.Context, name string) error {
	p, err := m.resolve(name)
	if err != nil {
		return err
	}
	if !m.cfg.Dialog.Confirm(ctx, fmt.Sprintf("Delete preset %q? Locks and the global default pointing at it are removed too.", p.Name)) {
		return ErrCancelled
	}

	if _, err := m.registry.Remove(p.Name); err != nil {
		return err
	}
	if preset.SameName(m.cfg.Locks.ChatLock(), p.Name) {
		m.cfg.Locks.SetChatLock("")
	}
	refs := m.cfg.Settings.RetargetLocks(p.Name, "")

	// The preset is gone, so there is no lock left to negotiate.
	if _, err := m.cfg.Activation.Deactivate(ctx, true); err != nil {
		return err
	}

	m.logger.Info("preset deleted", "preset", p.Name, "references", refs)
	m.cfg.Dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Preset %q deleted", p.Name))
	return nil
}

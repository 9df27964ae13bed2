// Package preset holds the named world-info bundles and the registry that
// owns them.
package preset

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// ErrNotFound is returned when a preset name does not resolve.
var ErrNotFound = errors.New("preset not found")

// Preset is a named set of books plus an optional engine settings snapshot.
// A nil EngineSettings means activation leaves the engine configuration alone.
type Preset struct {
	Name           string         `yaml:"name" json:"name"`
	Books          []string       `yaml:"books" json:"worldList"`
	EngineSettings map[string]any `yaml:"engine_settings,omitempty" json:"engineSettings,omitempty"`
}

// HasEngineSettings reports whether activation should patch the engine.
func (p Preset) HasEngineSettings() bool {
	return len(p.EngineSettings) > 0
}

// Contains reports whether book is a member of the preset.
func (p Preset) Contains(book string) bool {
	return slices.Contains(p.Books, book)
}

// Clone returns a deep copy so callers can't mutate registry state.
func (p Preset) Clone() Preset {
	out := Preset{Name: p.Name, Books: slices.Clone(p.Books)}
	if p.EngineSettings != nil {
		out.EngineSettings = maps.Clone(p.EngineSettings)
	}
	return out
}

// SameName compares preset names the way lookups do.
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Label returns the display label for an optional preset name.
func Label(name string) string {
	if name == "" {
		return "None"
	}
	return name
}

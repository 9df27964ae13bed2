// Package settings owns the extension-wide settings root: the preset
// registry, character and group locks, feature gates and the global default.
package settings

import (
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
)

// Settings is the persisted document.
type Settings struct {
	PresetList          []preset.Preset   `yaml:"preset_list"`
	PresetName          string            `yaml:"preset_name"`
	CharacterLocks      map[string]string `yaml:"character_locks"`
	GroupLocks          map[string]string `yaml:"group_locks"`
	GlobalDefaultPreset string            `yaml:"global_default_preset"`
	Flags               `yaml:",inline"`
}

// Flags are the boolean toggles. A disabled lock category behaves as if no
// lock of that category exists. ShowLockNotifications only gates messages.
type Flags struct {
	PreferChatOverCharacterLocks bool `yaml:"prefer_chat_over_character_locks" json:"prefer_chat_over_character_locks"`
	EnableCharacterLocks         bool `yaml:"enable_character_locks" json:"enable_character_locks"`
	EnableChatLocks              bool `yaml:"enable_chat_locks" json:"enable_chat_locks"`
	EnableGroupLocks             bool `yaml:"enable_group_locks" json:"enable_group_locks"`
	ShowLockNotifications        bool `yaml:"show_lock_notifications" json:"show_lock_notifications"`
}

// Default returns the settings used when nothing is persisted yet.
func Default() Settings {
	return Settings{
		PresetList:     []preset.Preset{},
		CharacterLocks: map[string]string{},
		GroupLocks:     map[string]string{},
		Flags: Flags{
			EnableCharacterLocks:  true,
			EnableChatLocks:       true,
			EnableGroupLocks:      true,
			ShowLockNotifications: true,
		},
	}
}

// FlagNames lists the keys accepted by SetFlag.
var FlagNames = []string{
	"prefer_chat_over_character_locks",
	"enable_character_locks",
	"enable_chat_locks",
	"enable_group_locks",
	"show_lock_notifications",
}

func (f *Flags) field(name string) *bool {
	switch name {
	case "prefer_chat_over_character_locks":
		return &f.PreferChatOverCharacterLocks
	case "enable_character_locks":
		return &f.EnableCharacterLocks
	case "enable_chat_locks":
		return &f.EnableChatLocks
	case "enable_group_locks":
		return &f.EnableGroupLocks
	case "show_lock_notifications":
		return &f.ShowLockNotifications
	}
	return nil
}

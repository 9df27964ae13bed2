package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
)

func TestOpen_MissingFileUsesDefaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	flags := s.Flags()
	if !flags.EnableCharacterLocks || !flags.EnableChatLocks || !flags.EnableGroupLocks {
		t.Errorf("expected all lock categories enabled by default, got %+v", flags)
	}
	if s.Registry().Len() != 0 {
		t.Errorf("expected empty registry")
	}
}

func TestStore_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	s.Registry().Add(preset.Preset{
		Name:           "Combat",
		Books:          []string{"weapons"},
		EngineSettings: map[string]any{"depth": 4},
	})
	s.Registry().SetCurrent("Combat")
	s.SetCharacterLock("Seraphina", "Combat")
	s.SetGroupLock("grp-1", "Combat")
	s.SetGlobalDefault("Combat")
	if err := s.SetFlag("prefer_chat_over_character_locks", true); err != nil {
		t.Fatalf("SetFlag() error = %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.PresetName != "Combat" || len(snap.PresetList) != 1 {
		t.Fatalf("unexpected registry after reload: %+v", snap)
	}
	if snap.PresetList[0].EngineSettings["depth"] != 4 {
		t.Errorf("engine settings lost: %v", snap.PresetList[0].EngineSettings)
	}
	if snap.CharacterLocks["Seraphina"] != "Combat" || snap.GroupLocks["grp-1"] != "Combat" {
		t.Errorf("locks lost: %+v %+v", snap.CharacterLocks, snap.GroupLocks)
	}
	if snap.GlobalDefaultPreset != "Combat" || !snap.PreferChatOverCharacterLocks {
		t.Errorf("default or flags lost: %+v", snap)
	}
}

func TestStore_LocksStaySparse(t *testing.T) {
	s := New(Default(), "")

	s.SetCharacterLock("Seraphina", "Combat")
	s.SetCharacterLock("Seraphina", "")
	if _, ok := s.CharacterLocks()["Seraphina"]; ok {
		t.Error("empty preset name should delete the key")
	}

	s.SetCharacterLock("", "Combat")
	if len(s.CharacterLocks()) != 0 {
		t.Error("empty character should be ignored")
	}

	s.SetGroupLock("", "Combat")
	if len(s.GroupLocks()) != 0 {
		t.Error("empty group id should be ignored")
	}
}

func TestStore_RetargetLocks(t *testing.T) {
	s := New(Default(), "")
	s.SetCharacterLock("a", "Old")
	s.SetCharacterLock("b", "Other")
	s.SetGroupLock("g", "Old")
	s.SetGlobalDefault("Old")

	t.Run("rename", func(t *testing.T) {
		if n := s.RetargetLocks("Old", "New"); n != 3 {
			t.Errorf("changed %d references, want 3", n)
		}
		if s.CharacterLock("a") != "New" || s.GroupLock("g") != "New" || s.GlobalDefault() != "New" {
			t.Errorf("references not rewritten: %+v", s.Snapshot())
		}
		if s.CharacterLock("b") != "Other" {
			t.Error("unrelated lock touched")
		}
	})

	t.Run("remove", func(t *testing.T) {
		s.RetargetLocks("New", "")
		if s.CharacterLock("a") != "" || s.GroupLock("g") != "" || s.GlobalDefault() != "" {
			t.Errorf("references not cleared: %+v", s.Snapshot())
		}
		if len(s.CharacterLocks()) != 1 {
			t.Errorf("expected only the unrelated lock left, got %v", s.CharacterLocks())
		}
	})
}

func TestStore_SetFlagUnknown(t *testing.T) {
	s := New(Default(), "")
	if err := s.SetFlag("nope", true); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestStore_DebouncedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := New(Default(), path, WithDebounce(time.Hour))

	s.SetGlobalDefault("Combat")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no write before the debounce fires, stat err = %v", err)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if reloaded.GlobalDefault() != "Combat" {
		t.Errorf("GlobalDefault = %q after flush", reloaded.GlobalDefault())
	}

	// Nothing pending: a second flush is a no-op.
	if err := s.Flush(); err != nil {
		t.Errorf("second Flush() error = %v", err)
	}
}

func TestStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	other, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	other.Registry().Add(preset.Preset{Name: "Travel", Books: []string{"maps"}})
	other.SetGroupLock("grp-1", "Travel")

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if _, ok := s.Registry().Find("travel"); !ok {
		t.Errorf("registry not reloaded: %v", s.Registry().Names())
	}
	if s.GroupLock("grp-1") != "Travel" {
		t.Errorf("group lock not reloaded: %v", s.GroupLocks())
	}

	t.Run("pending save wins", func(t *testing.T) {
		d := New(Default(), path, WithDebounce(time.Hour))
		d.SetGlobalDefault("Mine")
		if err := d.Reload(); err != nil {
			t.Fatal(err)
		}
		if d.GlobalDefault() != "Mine" {
			t.Errorf("reload clobbered a pending save, default = %q", d.GlobalDefault())
		}
	})
}

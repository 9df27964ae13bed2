package preset

import (
	"slices"
	"testing"
)

func testRegistry(changes *int) *Registry {
	return NewRegistry([]Preset{
		{Name: "Combat", Books: []string{"weapons", "tactics"}},
		{Name: "Explore", Books: []string{"maps", "tactics"}},
	}, "Combat", func() { *changes++ })
}

func TestRegistry_Find(t *testing.T) {
	var changes int
	r := testRegistry(&changes)

	tests := []struct {
		name  string
		query string
		want  string
		found bool
	}{
		{"exact", "Combat", "Combat", true},
		{"case insensitive", "eXpLoRe", "Explore", true},
		{"missing", "Stealth", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.Find(tt.query)
			if ok != tt.found {
				t.Fatalf("Find(%q) found = %v, want %v", tt.query, ok, tt.found)
			}
			if p.Name != tt.want {
				t.Errorf("Find(%q) = %q, want %q", tt.query, p.Name, tt.want)
			}
		})
	}
}

func TestRegistry_FindLastWriteWins(t *testing.T) {
	var changes int
	r := testRegistry(&changes)
	r.Add(Preset{Name: "combat", Books: []string{"duel"}})

	p, ok := r.Find("COMBAT")
	if !ok {
		t.Fatal("expected a match")
	}
	if !slices.Equal(p.Books, []string{"duel"}) {
		t.Errorf("expected later duplicate to win, got %v", p.Books)
	}
}

func TestRegistry_CloneIsolation(t *testing.T) {
	var changes int
	r := testRegistry(&changes)

	p, _ := r.Find("Combat")
	p.Books[0] = "mutated"

	again, _ := r.Find("Combat")
	if again.Books[0] != "weapons" {
		t.Errorf("registry state leaked through Find: %v", again.Books)
	}
}

func TestRegistry_UpdateKeepsPosition(t *testing.T) {
	var changes int
	r := testRegistry(&changes)

	err := r.Update("combat", func(p *Preset) { p.Books = []string{"new"} })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := r.Names(); !slices.Equal(got, []string{"Combat", "Explore"}) {
		t.Errorf("order changed: %v", got)
	}
	if changes != 1 {
		t.Errorf("expected 1 change notification, got %d", changes)
	}
	if err := r.Update("missing", func(p *Preset) {}); err != ErrNotFound {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	var changes int
	r := testRegistry(&changes)

	removed, err := r.Remove("COMBAT")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed.Name != "Combat" {
		t.Errorf("removed %q", removed.Name)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 preset left, got %d", r.Len())
	}
	// Selection still names the removed preset; it must read as nothing.
	if _, ok := r.CurrentPreset(); ok {
		t.Error("dangling selection resolved to a preset")
	}
}

func TestRegistry_Effective(t *testing.T) {
	var changes int

	t.Run("lock wins", func(t *testing.T) {
		r := testRegistry(&changes)
		p, src, _, ok := r.Effective("explore", "Combat")
		if !ok || p.Name != "Explore" || src != SourceLock {
			t.Errorf("got %q %s %v", p.Name, src, ok)
		}
	})

	t.Run("missing lock fails soft", func(t *testing.T) {
		r := testRegistry(&changes)
		_, src, name, ok := r.Effective("Gone", "Combat")
		if ok || src != SourceLock || name != "Gone" {
			t.Errorf("got %s %q %v", src, name, ok)
		}
	})

	t.Run("selection before default", func(t *testing.T) {
		r := testRegistry(&changes)
		p, src, _, ok := r.Effective("", "Explore")
		if !ok || p.Name != "Combat" || src != SourceSelection {
			t.Errorf("got %q %s %v", p.Name, src, ok)
		}
	})

	t.Run("default when selection dangles", func(t *testing.T) {
		r := testRegistry(&changes)
		r.SetCurrent("Gone")
		p, src, _, ok := r.Effective("", "Explore")
		if !ok || p.Name != "Explore" || src != SourceDefault {
			t.Errorf("got %q %s %v", p.Name, src, ok)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		r := testRegistry(&changes)
		r.SetCurrent("")
		_, src, _, ok := r.Effective("", "")
		if ok || src != SourceNone {
			t.Errorf("got %s %v", src, ok)
		}
	})
}

func TestRegistry_RenameBook(t *testing.T) {
	var changes int
	r := testRegistry(&changes)

	touched := r.RenameBook("tactics", "strategy")
	if !slices.Equal(touched, []string{"Combat", "Explore"}) {
		t.Fatalf("touched = %v", touched)
	}
	p, _ := r.Find("Combat")
	if !slices.Equal(p.Books, []string{"weapons", "strategy"}) {
		t.Errorf("position not preserved: %v", p.Books)
	}
	if got := r.ReferencingBook("tactics"); len(got) != 0 {
		t.Errorf("old name still referenced by %v", got)
	}

	before := changes
	if touched := r.RenameBook("nothing", "else"); touched != nil {
		t.Errorf("expected no presets touched, got %v", touched)
	}
	if changes != before {
		t.Error("no-op rename should not notify")
	}
}

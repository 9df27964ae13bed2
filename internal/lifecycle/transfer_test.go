package lifecycle

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/testutil"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"minimal", `{"name":"A","worldList":["b1"]}`, false},
		{"legacy settings", `{"name":"A","worldList":[],"worldInfoSettings":{"depth":2}}`, false},
		{"not json", `{"name":`, true},
		{"missing worldList", `{"name":"A"}`, true},
		{"wrong type", `{"name":"A","worldList":"b1"}`, true},
		{"blank name", `{"name":"  ","worldList":[]}`, true},
		{"bad lock value", `{"name":"A","worldList":[],"characterLocks":{"x":1}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("Parse() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Parse() error = %v", err)
			}
		})
	}
}

func TestParseBookSource(t *testing.T) {
	if s, err := ParseBookSource(""); err != nil || s != BooksNone {
		t.Errorf("ParseBookSource(\"\") = %q, %v", s, err)
	}
	if _, err := ParseBookSource("all"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestExport_MissingBookWarns(t *testing.T) {
	f := newFixture(t, []preset.Preset{{Name: "Ghostly", Books: []string{"b1", "ghost"}}}, "Ghostly", "b1")
	var logs bytes.Buffer
	f.manager.logger = slog.New(slog.NewTextHandler(&logs, nil))

	out, err := f.manager.Export(t.Context(), "Ghostly", BooksDefined)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Books) != 1 || out.Books["b1"] == nil {
		t.Errorf("books = %v", out.Books)
	}
	if line := logs.String(); !strings.Contains(line, "level=WARN") || !strings.Contains(line, "book=ghost") {
		t.Errorf("missing warning, logs = %q", line)
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t, []preset.Preset{
		{Name: "Combat", Books: []string{"b1", "b2"}, EngineSettings: map[string]any{"depth": 4}},
		{Name: "Other", Books: []string{"b3"}},
	}, "Combat", "b1", "b4")
	f.settings.SetCharacterLock("Seraphina", "Combat")
	f.settings.SetCharacterLock("Lilac", "Other")
	f.settings.SetGroupLock("g-1", "Combat")
	f.settings.SetGlobalDefault("Combat")

	t.Run("defined books", func(t *testing.T) {
		out, err := f.manager.Export(t.Context(), "combat", BooksDefined)
		if err != nil {
			t.Fatal(err)
		}
		if out.Name != "Combat" || !out.IsGlobalDefault || out.EngineSettings["depth"] != 4 {
			t.Errorf("Export() = %+v", out)
		}
		if len(out.CharacterLocks) != 1 || out.CharacterLocks["Seraphina"] != "Combat" || out.GroupLocks["g-1"] != "Combat" {
			t.Errorf("locks = %v %v", out.CharacterLocks, out.GroupLocks)
		}
		if len(out.Books) != 2 || out.Books["b1"] == nil || out.Books["b2"] == nil {
			t.Errorf("books = %v", out.Books)
		}
	})

	t.Run("current books", func(t *testing.T) {
		out, err := f.manager.Export(t.Context(), "", BooksCurrent)
		if err != nil {
			t.Fatal(err)
		}
		if out.Books["b4"] == nil || out.Books["b2"] != nil {
			t.Errorf("books = %v", out.Books)
		}
	})

	t.Run("round trips through Parse", func(t *testing.T) {
		out, err := f.manager.Export(t.Context(), "Other", BooksNone)
		if err != nil {
			t.Fatal(err)
		}
		if out.Books != nil || out.IsGlobalDefault {
			t.Errorf("Export() = %+v", out)
		}
		data, err := out.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		back, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse(export) error = %v", err)
		}
		if back.Name != "Other" || !slices.Equal(back.WorldList, []string{"b3"}) {
			t.Errorf("Parse(export) = %+v", back)
		}
	})
}

func file(t *testing.T, source string, p Payload) ImportFile {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return ImportFile{Source: source, Data: data}
}

func TestImport_New(t *testing.T) {
	f := newFixture(t, nil, "")
	f.dialog.Confirms = []bool{true, true, false, true}

	results, err := f.manager.Import(t.Context(), []ImportFile{file(t, "combat.json", Payload{
		Name:              "Combat",
		WorldList:         []string{"b1", "new-book"},
		WorldInfoSettings: map[string]any{"depth": 3},
		Books:             map[string]json.RawMessage{"new-book": json.RawMessage(`{"entries":{}}`)},
		CharacterLocks:    map[string]string{"Seraphina": "Combat"},
		GroupLocks:        map[string]string{"g-1": "Combat"},
		IsGlobalDefault:   true,
	})})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Preset != "Combat" || results[0].Books != 1 {
		t.Fatalf("results = %+v", results)
	}
	p, ok := f.registry.Find("Combat")
	if !ok || p.EngineSettings["depth"] != float64(3) {
		t.Errorf("imported preset = %+v", p)
	}
	if !slices.Contains(f.books.Ops, "import:new-book") {
		t.Errorf("book not imported: %v", f.books.Ops)
	}
	if f.settings.CharacterLock("Seraphina") != "Combat" {
		t.Error("character locks not merged")
	}
	if len(f.settings.GroupLocks()) != 0 {
		t.Error("declined group locks were merged")
	}
	if f.settings.GlobalDefault() != "Combat" {
		t.Error("global default not adopted")
	}
}

func TestImport_OverwriteKeepsPosition(t *testing.T) {
	f := newFixture(t, []preset.Preset{
		{Name: "A", Books: []string{"b1"}},
		{Name: "Combat", Books: []string{"b1"}},
		{Name: "C", Books: []string{"b3"}},
	}, "Combat", "b1")
	f.dialog.Confirms = []bool{true}

	results, err := f.manager.Import(t.Context(), []ImportFile{file(t, "x.json", Payload{Name: "combat", WorldList: []string{"b2"}})})
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Overwritten {
		t.Errorf("results = %+v", results)
	}
	if got := f.registry.Names(); !slices.Equal(got, []string{"A", "Combat", "C"}) {
		t.Errorf("names = %v", got)
	}
	p, _ := f.registry.Find("Combat")
	if !slices.Equal(p.Books, []string{"b2"}) {
		t.Errorf("books = %v", p.Books)
	}
	if got := f.active(t); !slices.Equal(got, []string{"b2"}) {
		t.Errorf("active preset should be re-activated, live = %v", got)
	}
}

func TestImport_RenameOnCollision(t *testing.T) {
	f := newFixture(t, []preset.Preset{{Name: "Combat"}, {Name: "Taken"}}, "")
	// Decline overwrite, pick a taken name, decline again, then a free one.
	f.dialog.Confirms = []bool{false, false, true}
	f.dialog.Prompts = []*string{testutil.Answer("taken"), testutil.Answer("Combat 2")}

	results, err := f.manager.Import(t.Context(), []ImportFile{file(t, "x.json", Payload{
		Name:           "Combat",
		WorldList:      []string{"b1"},
		CharacterLocks: map[string]string{"Seraphina": "Combat"},
	})})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Preset != "Combat 2" || results[0].Overwritten {
		t.Errorf("results = %+v", results)
	}
	if got := f.registry.Names(); !slices.Equal(got, []string{"Combat", "Taken", "Combat 2"}) {
		t.Errorf("names = %v", got)
	}
	if got := f.settings.CharacterLock("Seraphina"); got != "Combat 2" {
		t.Errorf("imported lock should follow the new name, got %q", got)
	}
}

func TestImport_CancelAndContinue(t *testing.T) {
	f := newFixture(t, []preset.Preset{{Name: "Combat", Books: []string{"b1"}}}, "")
	f.dialog.Confirms = []bool{false}
	f.dialog.Prompts = []*string{nil}

	results, err := f.manager.Import(t.Context(), []ImportFile{
		file(t, "one.json", Payload{Name: "Combat", WorldList: []string{"b9"}}),
		{Source: "broken.json", Data: []byte(`{"worldList":[]}`)},
		file(t, "three.json", Payload{Name: "Explore", WorldList: []string{"b2"}}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || !results[0].Cancelled || results[1].Error == "" || results[2].Preset != "Explore" {
		t.Fatalf("results = %+v", results)
	}
	p, _ := f.registry.Find("Combat")
	if !slices.Equal(p.Books, []string{"b1"}) {
		t.Error("cancelled import changed the existing preset")
	}
	if len(f.dialog.NoticesAt(ui.LevelError)) != 1 {
		t.Errorf("errors = %v", f.dialog.NoticesAt(ui.LevelError))
	}
	if f.registry.Len() != 2 {
		t.Errorf("names = %v", f.registry.Names())
	}
}

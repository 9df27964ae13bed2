package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

// ErrInvalidPayload marks an import file that failed to parse or validate.
var ErrInvalidPayload = errors.New("invalid preset payload")

// Payload is the export/import file format.
type Payload struct {
	Name           string         `json:"name"`
	WorldList      []string       `json:"worldList"`
	EngineSettings map[string]any `json:"engineSettings,omitempty"`
	// WorldInfoSettings is the older spelling of EngineSettings, read on
	// import only.
	WorldInfoSettings map[string]any             `json:"worldInfoSettings,omitempty"`
	CharacterLocks    map[string]string          `json:"characterLocks,omitempty"`
	GroupLocks        map[string]string          `json:"groupLocks,omitempty"`
	IsGlobalDefault   bool                       `json:"isGlobalDefault,omitempty"`
	Books             map[string]json.RawMessage `json:"books,omitempty"`
}

func (p Payload) settings() map[string]any {
	if len(p.EngineSettings) > 0 {
		return p.EngineSettings
	}
	return p.WorldInfoSettings
}

// Marshal renders the payload as indented JSON.
func (p Payload) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

const payloadSchema = `{
  "type": "object",
  "required": ["name", "worldList"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "worldList": {"type": "array", "items": {"type": "string"}},
    "engineSettings": {"type": ["object", "null"]},
    "worldInfoSettings": {"type": ["object", "null"]},
    "characterLocks": {"type": "object", "additionalProperties": {"type": "string"}},
    "groupLocks": {"type": "object", "additionalProperties": {"type": "string"}},
    "isGlobalDefault": {"type": "boolean"},
    "books": {"type": "object"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("preset.json", strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("failed to load preset schema: %w", err)
	}
	return compiler.Compile("preset.json")
})

// Parse decodes and validates an import file.
func Parse(data []byte) (Payload, error) {
	schema, err := compiledSchema()
	if err != nil {
		return Payload{}, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var p Payload
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Payload{}, fmt.Errorf("%w: name is blank", ErrInvalidPayload)
	}
	return p, nil
}

// BookSource picks which book payloads an export inlines.
type BookSource string

const (
	BooksNone    BookSource = "none"
	BooksDefined BookSource = "defined"
	BooksCurrent BookSource = "current"
)

// ParseBookSource accepts the BookSource names; empty means none.
func ParseBookSource(s string) (BookSource, error) {
	switch BookSource(s) {
	case "", BooksNone:
		return BooksNone, nil
	case BooksDefined, BooksCurrent:
		return BookSource(s), nil
	}
	return "", fmt.Errorf("unknown book source %q (want none, defined or current)", s)
}

// Export builds the transfer payload for a preset; empty name exports the
// current one. Locks pointing at the preset and the global default flag are
// included. Books that cannot be fetched are left out.
func (m *Manager) Export(ctx context.Context, name string, source BookSource) (Payload, error) {
	p, err := m.resolve(name)
	if err != nil {
		return Payload{}, err
	}
	out := Payload{
		Name:            p.Name,
		WorldList:       slices.Clone(p.Books),
		EngineSettings:  maps.Clone(p.EngineSettings),
		IsGlobalDefault: preset.SameName(m.cfg.Settings.GlobalDefault(), p.Name),
	}
	if out.WorldList == nil {
		out.WorldList = []string{}
	}
	characters, groups := m.cfg.Settings.LocksFor(p.Name)
	if len(characters) > 0 {
		out.CharacterLocks = characters
	}
	if len(groups) > 0 {
		out.GroupLocks = groups
	}

	var names []string
	switch source {
	case BooksDefined:
		names = p.Books
	case BooksCurrent:
		if names, err = m.cfg.Books.Active(ctx); err != nil {
			return Payload{}, fmt.Errorf("failed to read active books: %w", err)
		}
	}
	for _, book := range names {
		data, err := m.cfg.Books.Fetch(ctx, book)
		if err != nil {
			m.logger.Warn("failed to fetch book", "book", book, "error", err)
			continue
		}
		if out.Books == nil {
			out.Books = map[string]json.RawMessage{}
		}
		out.Books[book] = data
	}

	m.logger.Info("preset exported", "preset", p.Name, "books", len(out.Books), "source", string(source))
	return out, nil
}

// ImportFile is one file handed to Import.
type ImportFile struct {
	Source string
	Data   []byte
}

// ImportResult reports what happened to one file.
type ImportResult struct {
	Source      string `json:"source" yaml:"source"`
	Preset      string `json:"preset,omitempty" yaml:"preset,omitempty"`
	Overwritten bool   `json:"overwritten,omitempty" yaml:"overwritten,omitempty"`
	Cancelled   bool   `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Books       int    `json:"books,omitempty" yaml:"books,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Import processes files one after another so collision prompts appear in a
// fixed order. A bad file is notified and skipped; the rest still import.
func (m *Manager) Import(ctx context.Context, files []ImportFile) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(files))
	for _, f := range files {
		res := ImportResult{Source: f.Source}
		payload, err := Parse(f.Data)
		if err != nil {
			m.logger.Warn("import rejected", "source", f.Source, "error", err)
			m.cfg.Dialog.Notify(ui.LevelError, fmt.Sprintf("Failed to import %s: %v", f.Source, err))
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		if err := m.importOne(ctx, payload, &res); err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *Manager) importOne(ctx context.Context, payload Payload, res *ImportResult) error {
	name, overwrite, ok := m.pickName(ctx, payload.Name)
	if !ok {
		res.Cancelled = true
		m.cfg.Dialog.Notify(ui.LevelInfo, fmt.Sprintf("Import of %q cancelled", payload.Name))
		return nil
	}
	res.Preset = name
	res.Overwritten = overwrite

	books := slices.Clone(payload.WorldList)
	engineSettings := maps.Clone(payload.settings())
	if overwrite {
		err := m.registry.Update(name, func(p *preset.Preset) {
			p.Books = books
			p.EngineSettings = engineSettings
		})
		if err != nil {
			return err
		}
		if preset.SameName(m.registry.Current(), name) {
			updated, _ := m.registry.Find(name)
			if _, err := m.cfg.Activation.Activate(ctx, &updated, true); err != nil {
				return err
			}
		}
	} else {
		m.registry.Add(preset.Preset{Name: name, Books: books, EngineSettings: engineSettings})
	}

	if len(payload.Books) > 0 {
		res.Books = m.importBooks(ctx, payload.Books)
	}
	if len(payload.CharacterLocks) > 0 &&
		m.cfg.Dialog.Confirm(ctx, fmt.Sprintf("Import %d character lock(s) for %q?", len(payload.CharacterLocks), name)) {
		m.cfg.Settings.MergeCharacterLocks(retarget(payload.CharacterLocks, payload.Name, name))
	}
	if len(payload.GroupLocks) > 0 &&
		m.cfg.Dialog.Confirm(ctx, fmt.Sprintf("Import %d group lock(s) for %q?", len(payload.GroupLocks), name)) {
		m.cfg.Settings.MergeGroupLocks(retarget(payload.GroupLocks, payload.Name, name))
	}
	if payload.IsGlobalDefault &&
		m.cfg.Dialog.Confirm(ctx, fmt.Sprintf("Set %q as the global default preset?", name)) {
		m.cfg.Settings.SetGlobalDefault(name)
	}

	m.logger.Info("preset imported", "preset", name, "overwritten", overwrite, "books", res.Books)
	m.cfg.Dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Preset %q imported", name))
	return nil
}

// pickName resolves a name collision. Declining the overwrite asks for
// another name; entering a taken name asks again. Dismissing cancels.
func (m *Manager) pickName(ctx context.Context, name string) (string, bool, bool) {
	for {
		existing, ok := m.registry.Find(name)
		if !ok {
			return name, false, true
		}
		if m.cfg.Dialog.Confirm(ctx, fmt.Sprintf("Preset %q already exists. Overwrite it?", existing.Name)) {
			return existing.Name, true, true
		}
		answer, ok := m.cfg.Dialog.Prompt(ctx, "Enter a different name for the imported preset:", name)
		answer = strings.TrimSpace(answer)
		if !ok || answer == "" {
			return "", false, false
		}
		name = answer
	}
}

func (m *Manager) importBooks(ctx context.Context, payloads map[string]json.RawMessage) int {
	names := slices.Collect(maps.Keys(payloads))
	sort.Strings(names)
	question := fmt.Sprintf("This file contains %d book(s): %s. Import them?", len(names), strings.Join(names, ", "))
	if !m.cfg.Dialog.Confirm(ctx, question) {
		return 0
	}
	n := 0
	for _, book := range names {
		if err := m.cfg.Books.Import(ctx, book, payloads[book]); err != nil {
			m.logger.Warn("failed to import book", "book", book, "error", err)
			m.cfg.Dialog.Notify(ui.LevelError, fmt.Sprintf("Failed to import book %q: %v", book, err))
			continue
		}
		n++
	}
	return n
}

// retarget points lock values naming from at to instead, for imports saved
// under a different name.
func retarget(locks map[string]string, from, to string) map[string]string {
	out := make(map[string]string, len(locks))
	for k, v := range locks {
		if preset.SameName(v, from) {
			v = to
		}
		out[k] = v
	}
	return out
}

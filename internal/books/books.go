// Package books is the book repository: the world-info files the engine can
// load and unload, and the live selection of loaded books.
package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrBookNotFound is returned when a named book has no file.
	ErrBookNotFound = errors.New("book not found")
	// ErrInvalidName is returned for names that can't be a file name.
	ErrInvalidName = errors.New("invalid book name")
)

// Repository is everything the preset core needs from book storage.
type Repository interface {
	// List returns every known book name.
	List(ctx context.Context) ([]string, error)
	// Active returns the names of the currently loaded books.
	Active(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context, name string) error
	// Fetch returns a book's full payload.
	Fetch(ctx context.Context, name string) (json.RawMessage, error)
	// Import stores a book payload under name, replacing any existing file.
	Import(ctx context.Context, name string, data json.RawMessage) error
}

const (
	bookExt        = ".json"
	activeFileName = "active.yaml"
)

// Dir stores each book as <name>.json in a directory and the live selection
// in active.yaml next to them.
type Dir struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewDir creates a directory-backed repository.
func NewDir(path string, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{path: path, logger: logger}
}

// Path returns the books directory.
func (d *Dir) Path() string {
	return d.path
}

// ValidateName rejects names that would escape the books directory.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (d *Dir) bookPath(name string) string {
	return filepath.Join(d.path, name+bookExt)
}

// IsBookFile reports whether a path inside the directory is a book file.
func IsBookFile(path string) bool {
	return filepath.Ext(path) == bookExt
}

// List implements Repository.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsBookFile(e.Name()) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), bookExt))
	}
	sort.Strings(names)
	return names, nil
}

func (d *Dir) readActive() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(d.path, activeFileName))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active books: %w", err)
	}
	var active []string
	if err := yaml.Unmarshal(data, &active); err != nil {
		return nil, fmt.Errorf("failed to parse active books: %w", err)
	}
	if active == nil {
		active = []string{}
	}
	return active, nil
}

func (d *Dir) writeActive(active []string) error {
	data, err := yaml.Marshal(active)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d.path, activeFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Active implements Repository.
func (d *Dir) Active(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readActive()
}

// Load implements Repository. Loading an already loaded book is a no-op.
func (d *Dir) Load(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := os.Stat(d.bookPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBookNotFound, name)
		}
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	active, err := d.readActive()
	if err != nil {
		return err
	}
	if slices.Contains(active, name) {
		return nil
	}
	return d.writeActive(append(active, name))
}

// Unload implements Repository. Unloading a book that isn't loaded is a no-op.
func (d *Dir) Unload(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	active, err := d.readActive()
	if err != nil {
		return err
	}
	i := slices.Index(active, name)
	if i < 0 {
		return nil
	}
	return d.writeActive(slices.Delete(active, i, i+1))
}

// Fetch implements Repository. Failures are logged as warnings too, since
// export treats a missing book as skippable.
func (d *Dir) Fetch(ctx context.Context, name string) (json.RawMessage, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.bookPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrBookNotFound, name)
		}
		d.logger.Warn("failed to fetch book", "book", name, "error", err)
		return nil, err
	}
	if !json.Valid(data) {
		err := fmt.Errorf("book %s is not valid JSON", name)
		d.logger.Warn("failed to fetch book", "book", name, "error", err)
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Import implements Repository.
func (d *Dir) Import(ctx context.Context, name string, data json.RawMessage) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("book %s is not valid JSON", name)
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return err
	}
	return os.WriteFile(d.bookPath(name), data, 0o644)
}

// Rename moves a book file. The live selection follows the new name.
func (d *Dir) Rename(ctx context.Context, oldName, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}
	if err := os.Rename(d.bookPath(oldName), d.bookPath(newName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBookNotFound, oldName)
		}
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	active, err := d.readActive()
	if err != nil {
		return err
	}
	if i := slices.Index(active, oldName); i >= 0 {
		active[i] = newName
		return d.writeActive(active)
	}
	return nil
}

package preset

import (
	"sync"
)

// Source says which rule produced an effective preset.
type Source string

const (
	SourceNone      Source = "none"
	SourceLock      Source = "lock"
	SourceSelection Source = "selection"
	SourceDefault   Source = "default"
)

// Registry owns the ordered preset list and the currently selected name.
// The selection is a weak reference: it may name a preset that no longer
// exists, which every reader treats as "nothing selected".
type Registry struct {
	mu       sync.RWMutex
	presets  []Preset
	current  string
	onChange func()
}

// NewRegistry builds a registry over presets. onChange runs after every
// mutation, outside the registry lock.
func NewRegistry(presets []Preset, current string, onChange func()) *Registry {
	r := &Registry{current: current, onChange: onChange}
	for _, p := range presets {
		r.presets = append(r.presets, p.Clone())
	}
	return r
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// All returns a copy of every preset in registry order.
func (r *Registry) All() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Preset, len(r.presets))
	for i, p := range r.presets {
		out[i] = p.Clone()
	}
	return out
}

// Names returns preset names in registry order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.presets))
	for i, p := range r.presets {
		out[i] = p.Name
	}
	return out
}

// Len returns the number of presets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.presets)
}

// index finds name case-insensitively. Duplicate names can exist briefly
// after a create, so the last entry wins.
func (r *Registry) index(name string) int {
	if name == "" {
		return -1
	}
	for i := len(r.presets) - 1; i >= 0; i-- {
		if SameName(r.presets[i].Name, name) {
			return i
		}
	}
	return -1
}

// Find looks up a preset by case-insensitive name.
func (r *Registry) Find(name string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(name)
	if i < 0 {
		return Preset{}, false
	}
	return r.presets[i].Clone(), true
}

// Index returns the position of name, or -1.
func (r *Registry) Index(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index(name)
}

// Add appends p.
func (r *Registry) Add(p Preset) {
	r.mu.Lock()
	r.presets = append(r.presets, p.Clone())
	r.mu.Unlock()
	r.changed()
}

// Update applies fn to the named preset in place. The preset keeps its
// position in the list.
func (r *Registry) Update(name string, fn func(p *Preset)) error {
	r.mu.Lock()
	i := r.index(name)
	if i < 0 {
		r.mu.Unlock()
		return ErrNotFound
	}
	p := r.presets[i].Clone()
	fn(&p)
	r.presets[i] = p
	r.mu.Unlock()
	r.changed()
	return nil
}

// Remove deletes the named preset and returns it.
func (r *Registry) Remove(name string) (Preset, error) {
	r.mu.Lock()
	i := r.index(name)
	if i < 0 {
		r.mu.Unlock()
		return Preset{}, ErrNotFound
	}
	removed := r.presets[i]
	r.presets = append(r.presets[:i], r.presets[i+1:]...)
	r.mu.Unlock()
	r.changed()
	return removed, nil
}

// Replace swaps in a new list and selection without firing onChange. It is
// used when the backing file was changed by someone else.
func (r *Registry) Replace(presets []Preset, current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets = r.presets[:0]
	for _, p := range presets {
		r.presets = append(r.presets, p.Clone())
	}
	r.current = current
}

// Current returns the selected preset name, possibly dangling.
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetCurrent replaces the selected name. Empty means none.
func (r *Registry) SetCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
	r.changed()
}

// CurrentPreset resolves the selection; a dangling name yields false.
func (r *Registry) CurrentPreset() (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(r.current)
	if i < 0 {
		return Preset{}, false
	}
	return r.presets[i].Clone(), true
}

// Effective resolves the preset that should be active: lock first, then the
// explicit selection, then the global default. The returned name is the one
// that was asked for, even when it did not resolve, so callers can report it.
func (r *Registry) Effective(lock, globalDefault string) (Preset, Source, string, bool) {
	if lock != "" {
		p, ok := r.Find(lock)
		return p, SourceLock, lock, ok
	}
	if p, ok := r.CurrentPreset(); ok {
		return p, SourceSelection, p.Name, true
	}
	if globalDefault != "" {
		p, ok := r.Find(globalDefault)
		return p, SourceDefault, globalDefault, ok
	}
	return Preset{}, SourceNone, "", false
}

// ReferencingBook returns the names of presets whose book list contains book.
func (r *Registry) ReferencingBook(book string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, p := range r.presets {
		if p.Contains(book) {
			names = append(names, p.Name)
		}
	}
	return names
}

// RenameBook replaces oldName with newName in every preset's book list,
// keeping each entry's position. It returns the names of presets touched.
func (r *Registry) RenameBook(oldName, newName string) []string {
	r.mu.Lock()
	var touched []string
	for i := range r.presets {
		hit := false
		for j, b := range r.presets[i].Books {
			if b == oldName {
				r.presets[i].Books[j] = newName
				hit = true
			}
		}
		if hit {
			touched = append(touched, r.presets[i].Name)
		}
	}
	r.mu.Unlock()
	if len(touched) > 0 {
		r.changed()
	}
	return touched
}

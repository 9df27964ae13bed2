// Package engine applies captured world-info engine settings to the live
// engine configuration and captures them back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned for settings keys the engine doesn't have.
var ErrUnknownKey = errors.New("unknown engine setting")

type kind int

const (
	kindInt kind = iota
	kindBool
)

// The engine zeroes one of these when the other is set non-zero.
const (
	KeyMaxRecursionSteps = "max_recursion_steps"
	KeyMinActivations    = "min_activations"
)

// Order is the fixed application order. max_recursion_steps precedes
// min_activations so that when both are requested non-zero,
// min_activations is the one left standing.
var Order = []string{
	"depth",
	"min_activations_depth_max",
	"budget",
	"budget_cap",
	"include_names",
	"recursive",
	"case_sensitive",
	"match_whole_words",
	"use_group_scoring",
	"overflow_alert",
	KeyMaxRecursionSteps,
	KeyMinActivations,
}

var kinds = map[string]kind{
	"depth":                     kindInt,
	"min_activations_depth_max": kindInt,
	"budget":                    kindInt,
	"budget_cap":                kindInt,
	"include_names":             kindBool,
	"recursive":                 kindBool,
	"case_sensitive":            kindBool,
	"match_whole_words":         kindBool,
	"use_group_scoring":         kindBool,
	"overflow_alert":            kindBool,
	KeyMaxRecursionSteps:        kindInt,
	KeyMinActivations:           kindInt,
}

// Result reports a patch outcome. Overridden lists keys the engine's own
// exclusivity rule zeroed after they were applied; they are not failures.
type Result struct {
	Success    bool     `json:"success" yaml:"success"`
	Applied    []string `json:"applied_keys" yaml:"applied_keys"`
	Failed     []string `json:"failed_keys,omitempty" yaml:"failed_keys,omitempty"`
	Overridden []string `json:"overridden_keys,omitempty" yaml:"overridden_keys,omitempty"`
}

// Patcher is the engine-configuration collaborator.
type Patcher interface {
	Apply(ctx context.Context, patch map[string]any) (Result, error)
	// Capture returns the current values for keys, or every key when keys
	// is empty.
	Capture(ctx context.Context, keys ...string) (map[string]any, error)
}

// Defaults mirrors a fresh engine configuration.
func Defaults() map[string]any {
	return map[string]any{
		"depth":                     2,
		"min_activations_depth_max": 0,
		"budget":                    25,
		"budget_cap":                0,
		"include_names":             true,
		"recursive":                 true,
		"case_sensitive":            false,
		"match_whole_words":         false,
		"use_group_scoring":         false,
		"overflow_alert":            false,
		KeyMaxRecursionSteps:        0,
		KeyMinActivations:           0,
	}
}

// Coerce converts v to the knob's type. JSON numbers arrive as float64 and
// YAML numbers as int, so both are accepted for integer knobs.
func Coerce(key string, v any) (any, error) {
	k, ok := kinds[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	switch k {
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected bool, got %T", key, v)
		}
		return b, nil
	default:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case uint64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%s: expected integer, got %v", key, n)
			}
			return int(n), nil
		}
		return nil, fmt.Errorf("%s: expected integer, got %T", key, v)
	}
}

// File keeps the engine configuration in a YAML file.
type File struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFile creates a file-backed engine configuration.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

func (f *File) read() (map[string]any, error) {
	values := Defaults()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}
	var stored map[string]any
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse engine config: %w", err)
	}
	for k, v := range stored {
		values[k] = v
	}
	return values, nil
}

func (f *File) write(values map[string]any) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// set applies one knob including the engine's exclusivity rule.
func set(values map[string]any, key string, v any) {
	values[key] = v
	if n, ok := v.(int); ok && n != 0 {
		switch key {
		case KeyMaxRecursionSteps:
			values[KeyMinActivations] = 0
		case KeyMinActivations:
			values[KeyMaxRecursionSteps] = 0
		}
	}
}

// Apply implements Patcher. Each key is applied in Order, then the stored
// configuration is read back and compared against what was requested.
func (f *File) Apply(ctx context.Context, patch map[string]any) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res Result
	values, err := f.read()
	if err != nil {
		return res, err
	}

	requested := make(map[string]any, len(patch))
	var applied []string
	for _, key := range Order {
		raw, ok := patch[key]
		if !ok {
			continue
		}
		v, err := Coerce(key, raw)
		if err != nil {
			f.logger.Warn("skipping engine setting", "key", key, "error", err)
			res.Failed = append(res.Failed, key)
			continue
		}
		set(values, key, v)
		requested[key] = v
		applied = append(applied, key)
	}
	for key := range patch {
		if _, known := kinds[key]; !known {
			f.logger.Warn("skipping engine setting", "key", key, "error", ErrUnknownKey)
			res.Failed = append(res.Failed, key)
		}
	}

	if err := f.write(values); err != nil {
		return res, fmt.Errorf("failed to write engine config: %w", err)
	}

	stored, err := f.read()
	if err != nil {
		return res, err
	}
	for _, key := range applied {
		got, err := Coerce(key, stored[key])
		switch {
		case err == nil && got == requested[key]:
			res.Applied = append(res.Applied, key)
		case key == KeyMaxRecursionSteps && requested[KeyMinActivations] != nil && requested[KeyMinActivations] != 0:
			res.Overridden = append(res.Overridden, key)
		default:
			res.Failed = append(res.Failed, key)
		}
	}
	slices.Sort(res.Failed)
	res.Success = len(res.Failed) == 0
	return res, nil
}

// Capture implements Patcher.
func (f *File) Capture(ctx context.Context, keys ...string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		keys = Order
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if _, ok := kinds[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		out[key] = values[key]
	}
	return out, nil
}

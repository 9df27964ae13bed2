package engine

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	return NewFile(filepath.Join(t.TempDir(), "engine.yaml"), nil)
}

func TestFile_ApplyAndCapture(t *testing.T) {
	f := newTestFile(t)
	ctx := t.Context()

	res, err := f.Apply(ctx, map[string]any{
		"depth":          float64(4),
		"case_sensitive": true,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Success || !slices.Equal(res.Applied, []string{"depth", "case_sensitive"}) {
		t.Errorf("Apply() = %+v", res)
	}

	got, err := f.Capture(ctx, "depth", "case_sensitive")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got["depth"] != 4 || got["case_sensitive"] != true {
		t.Errorf("Capture() = %v", got)
	}
}

func TestFile_RecursionExclusivity(t *testing.T) {
	f := newTestFile(t)
	ctx := t.Context()

	res, err := f.Apply(ctx, map[string]any{
		KeyMinActivations:    3,
		KeyMaxRecursionSteps: 5,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Success {
		t.Errorf("exclusivity override must not count as failure: %+v", res)
	}
	if !slices.Equal(res.Overridden, []string{KeyMaxRecursionSteps}) {
		t.Errorf("Overridden = %v", res.Overridden)
	}

	got, _ := f.Capture(ctx, KeyMinActivations, KeyMaxRecursionSteps)
	if got[KeyMinActivations] != 3 || got[KeyMaxRecursionSteps] != 0 {
		t.Errorf("min_activations should win, got %v", got)
	}
}

func TestFile_ApplyMaxRecursionAlone(t *testing.T) {
	f := newTestFile(t)
	ctx := t.Context()
	if _, err := f.Apply(ctx, map[string]any{KeyMinActivations: 2}); err != nil {
		t.Fatal(err)
	}

	res, err := f.Apply(ctx, map[string]any{KeyMaxRecursionSteps: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || len(res.Overridden) != 0 {
		t.Errorf("Apply() = %+v", res)
	}
	got, _ := f.Capture(ctx, KeyMinActivations, KeyMaxRecursionSteps)
	if got[KeyMinActivations] != 0 || got[KeyMaxRecursionSteps] != 4 {
		t.Errorf("Capture() = %v", got)
	}
}

func TestFile_ApplyReportsFailures(t *testing.T) {
	f := newTestFile(t)

	res, err := f.Apply(t.Context(), map[string]any{
		"depth":     "deep",
		"bogus_key": 1,
		"recursive": false,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Success {
		t.Error("expected partial failure")
	}
	if !slices.Equal(res.Failed, []string{"bogus_key", "depth"}) {
		t.Errorf("Failed = %v", res.Failed)
	}
	if !slices.Equal(res.Applied, []string{"recursive"}) {
		t.Errorf("Applied = %v", res.Applied)
	}
}

func TestFile_CaptureUnknownKey(t *testing.T) {
	f := newTestFile(t)
	if _, err := f.Capture(t.Context(), "nope"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Capture(nope) error = %v, want ErrUnknownKey", err)
	}
	all, err := f.Capture(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(Order) {
		t.Errorf("Capture() returned %d keys, want %d", len(all), len(Order))
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		key     string
		in      any
		want    any
		wantErr bool
	}{
		{"depth", 3, 3, false},
		{"depth", float64(3), 3, false},
		{"depth", 2.5, nil, true},
		{"recursive", true, true, false},
		{"recursive", "yes", nil, true},
		{"unknown", 1, nil, true},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.key, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Coerce(%s, %v) error = %v", tt.key, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Coerce(%s, %v) = %v, want %v", tt.key, tt.in, got, tt.want)
		}
	}
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retry.Attempts != 10 || cfg.Retry.Delay != 100*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.ContextCache != 100*time.Millisecond || cfg.RenameThrottle != time.Second {
		t.Errorf("timings = %+v", cfg)
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		configContent := `
log_level: debug
retry:
  attempts: 3
  delay: 5ms
rename_throttle: 2s
`
		if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.LogLevel != "debug" || cfg.Retry.Attempts != 3 || cfg.Retry.Delay != 5*time.Millisecond {
			t.Errorf("config = %+v", cfg)
		}
		if cfg.RenameThrottle != 2*time.Second {
			t.Errorf("rename_throttle = %v", cfg.RenameThrottle)
		}
		if cfg.ContextCache != 100*time.Millisecond {
			t.Errorf("unset keys should keep defaults, context_cache = %v", cfg.ContextCache)
		}
	})

	t.Run("missing file uses defaults", func(t *testing.T) {
		mgr, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Retry.Attempts != 10 {
			t.Errorf("config = %+v", mgr.Get())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("WILOCKS_RETRY_ATTEMPTS", "7")
		t.Setenv("WILOCKS_METRICS_ADDR", ":9100")
		mgr, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		if cfg := mgr.Get(); cfg.Retry.Attempts != 7 || cfg.MetricsAddr != ":9100" {
			t.Errorf("config = %+v", cfg)
		}
	})
}

func TestManager_OnChange(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatal(err)
	}

	var got []*Config
	mgr.OnChange(func(cfg *Config) { got = append(got, cfg) })
	mgr.OnChange(func(cfg *Config) { got = append(got, cfg) })

	if err := os.WriteFile(configFile, []byte("log_level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.reload(); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || got[0].LogLevel != "error" {
		t.Fatalf("callbacks saw %d configs", len(got))
	}
	if mgr.Get().LogLevel != "error" {
		t.Errorf("Get() = %+v", mgr.Get())
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Retry.Attempts
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("reading written defaults: %v", err)
	}
	if got, want := *mgr.Get(), *DefaultConfig(); got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

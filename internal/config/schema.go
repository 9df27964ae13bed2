package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config holds wilocks runtime configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Home     string      `mapstructure:"home"`
	LogLevel string      `mapstructure:"log_level"`
	Retry    RetryConfig `mapstructure:"retry"`

	// ContextCache is how long a resolved context is reused.
	ContextCache time.Duration `mapstructure:"context_cache"`
	// RenameThrottle is the minimum spacing between book-list diffs.
	RenameThrottle time.Duration `mapstructure:"rename_throttle"`
	// RenamePoll is how often the book watcher re-lists without an fs event.
	RenamePoll       time.Duration `mapstructure:"rename_poll"`
	SettingsDebounce time.Duration `mapstructure:"settings_debounce"`

	// MetricsAddr serves /metrics from the watch command; empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// RetryConfig bounds the wait for context data in lock checks.
type RetryConfig struct {
	Attempts uint          `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Retry: RetryConfig{
			Attempts: 10,
			Delay:    100 * time.Millisecond,
		},
		ContextCache:     100 * time.Millisecond,
		RenameThrottle:   time.Second,
		RenamePoll:       2 * time.Second,
		SettingsDebounce: 250 * time.Millisecond,
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/engine"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "World-info engine settings commands",
}

var engineShowCmd = &cobra.Command{
	Use:   "show [key]...",
	Short: "Show engine settings",
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		values, err := a.engine.Capture(ctx, args...)
		if err != nil {
			return err
		}
		return a.out.Print(values)
	}),
}

var engineSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Change engine settings",
	Long: fmt.Sprintf(`Apply engine settings in the engine's fixed order. Setting both
max_recursion_steps and min_activations non-zero leaves min_activations.

Keys: %s`, strings.Join(engine.Order, ", ")),
	Args: cobra.MinimumNArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		patch := make(map[string]any, len(args))
		for _, arg := range args {
			key, raw, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", arg)
			}
			var v any
			if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			coerced, err := engine.Coerce(key, v)
			if err != nil {
				return err
			}
			patch[key] = coerced
		}
		res, err := a.engine.Apply(ctx, patch)
		if err != nil {
			return err
		}
		return a.out.Print(res)
	}),
}

func init() {
	engineCmd.AddCommand(engineShowCmd)
	engineCmd.AddCommand(engineSetCmd)
	rootCmd.AddCommand(engineCmd)
}

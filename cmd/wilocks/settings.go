package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Lock feature toggles",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the lock feature toggles",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		return a.out.Print(a.settings.Flags())
	}),
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <true|false>",
	Short: "Change a lock feature toggle",
	Long: fmt.Sprintf(`Change one of the lock feature toggles. A disabled lock category behaves
as if none of its locks exist.

Keys: %v`, settings.FlagNames),
	Args: cobra.ExactArgs(2),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		if err := a.settings.SetFlag(args[0], value); err != nil {
			return err
		}
		return a.out.Print(a.settings.Flags())
	}),
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

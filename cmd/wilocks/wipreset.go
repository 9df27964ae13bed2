package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var wipresetCmd = &cobra.Command{
	Use:   "wipreset [name]",
	Short: "Activate a preset by name, or deactivate with no name",
	Long: `Activate the named preset, matching case-insensitively. With no name the
active preset's books are unloaded and nothing is selected.

Switching away from a preset that a lock points at offers to move the lock.

Examples:
  wilocks wipreset Combat
  wilocks wipreset "Slice of Life"
  wilocks wipreset               # deactivate`,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		report, err := a.controller.WiPreset(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return a.out.Print(report)
	}),
}

func init() {
	rootCmd.AddCommand(wipresetCmd)
}

package main

import (
	"context"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Apply the lock or default for the current context",
	Long: `Run one lock check: an applicable lock wins, then the current selection,
then the global default. Waits briefly for the host context to load.`,
	Args: cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		res, err := a.controller.CheckAndApplyLocks(ctx)
		if err != nil {
			return err
		}
		return a.out.Print(res)
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active preset, loaded books and lock resolution",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		s, err := a.status(ctx)
		if err != nil {
			return err
		}
		return a.out.Print(s)
	}),
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
}

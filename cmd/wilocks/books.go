package main

import (
	"context"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/reconcile"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "World-info book commands",
}

type bookRow struct {
	Name    string   `json:"name" yaml:"name"`
	Loaded  bool     `json:"loaded,omitempty" yaml:"loaded,omitempty"`
	Presets []string `json:"presets,omitempty" yaml:"presets,omitempty"`
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books, which are loaded and which presets use them",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		names, err := a.books.List(ctx)
		if err != nil {
			return err
		}
		active, err := a.books.Active(ctx)
		if err != nil {
			return err
		}
		rows := make([]bookRow, 0, len(names))
		for _, name := range names {
			rows = append(rows, bookRow{
				Name:    name,
				Loaded:  slices.Contains(active, name),
				Presets: a.settings.Registry().ReferencingBook(name),
			})
		}
		return a.out.Print(rows)
	}),
}

var booksRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a book file and offer to update presets using it",
	Args:  cobra.ExactArgs(2),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		// A one-shot reconciler: the two snapshots are taken back to back.
		r := reconcile.New(a.settings.Registry(), a.dialog,
			reconcile.WithThrottle(0),
			reconcile.WithObserver(a.observer),
			reconcile.WithLogger(a.logger),
		)
		before, err := a.books.List(ctx)
		if err != nil {
			return err
		}
		r.Observe(ctx, before)

		if err := a.books.Rename(ctx, args[0], args[1]); err != nil {
			return err
		}
		after, err := a.books.List(ctx)
		if err != nil {
			return err
		}
		proposal, ok := r.Observe(ctx, after)
		if !ok {
			return a.out.Print(reconcile.Proposal{From: args[0], To: args[1]})
		}
		return a.out.Print(proposal)
	}),
}

func init() {
	booksCmd.AddCommand(booksListCmd)
	booksCmd.AddCommand(booksRenameCmd)
	rootCmd.AddCommand(booksCmd)
}

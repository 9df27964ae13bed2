package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/controller"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/hostctx"
)

var (
	ctxCharacter string
	ctxGroup     string
	ctxChat      string
	groupChat    string
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Host conversation state commands",
	Long: `Read and change the host state that locks are keyed on: the current
character, the selected group and the open chat. Changes are followed by a
lock check, the same as a live host event.`,
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved conversation context",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		return a.out.Print(a.contexts.Current())
	}),
}

var contextSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Switch character, group or chat and apply locks",
	Long: `Switch the host to another character, group or chat, then run the lock
check. Selecting a character leaves any group; selecting a group opens its
chat unless --chat is also given.

Examples:
  wilocks context set --character Seraphina --chat "Seraphina - 2024-05-01"
  wilocks context set --group grp-1
  wilocks context set --chat "Seraphina - 2024-05-02"`,
	Args: cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		if ctxCharacter == "" && ctxGroup == "" && ctxChat == "" {
			return errors.New("nothing to change: pass --character, --group or --chat")
		}
		kind := controller.ChatChanged
		if ctxCharacter != "" {
			a.host.SetCharacter(ctxCharacter)
			kind = controller.CharacterChanged
		}
		if ctxGroup != "" {
			if err := a.host.SetGroup(ctxGroup); err != nil {
				return err
			}
			kind = controller.CharacterChanged
		}
		if ctxChat != "" {
			a.host.SetChat(ctxChat)
		}
		if err := a.controller.Handle(ctx, controller.Event{Kind: kind}); err != nil {
			return err
		}
		return a.out.Print(a.locks.Resolve())
	}),
}

var contextAddGroupCmd = &cobra.Command{
	Use:   "add-group <id> <name>",
	Short: "Add or replace a group in the host's group list",
	Args:  cobra.ExactArgs(2),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		g := hostctx.Group{ID: args[0], Name: args[1], ChatID: groupChat}
		a.host.PutGroup(g)
		return a.out.Print(g)
	}),
}

func init() {
	contextSetCmd.Flags().StringVar(&ctxCharacter, "character", "", "character to switch to")
	contextSetCmd.Flags().StringVar(&ctxGroup, "group", "", "group id to select")
	contextSetCmd.Flags().StringVar(&ctxChat, "chat", "", "chat id to open")
	contextSetCmd.MarkFlagsMutuallyExclusive("character", "group")
	contextAddGroupCmd.Flags().StringVar(&groupChat, "chat", "", "the group's chat id")

	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextAddGroupCmd)
	rootCmd.AddCommand(contextCmd)
}

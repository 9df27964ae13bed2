package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/locks"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Chat, character and group lock commands",
	Long: `Locks bind a preset to the current chat, character or group. When the
context changes, the winning lock's preset is activated.

Precedence in a character chat: character lock first, chat lock as fallback,
or the reverse with prefer_chat_over_character_locks. In a group chat: chat
lock first, group lock as fallback.`,
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current context, every lock and the winner",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		return a.out.Print(a.locks.Resolve())
	}),
}

var lockSetCmd = &cobra.Command{
	Use:   "set <chat|character|group> [preset]",
	Short: "Lock a preset to the current chat, character or group",
	Long: `Lock a preset to the current chat, character or group. With no preset
the selected one is used.

Examples:
  wilocks lock set chat
  wilocks lock set character Combat`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		name := a.settings.Registry().Current()
		if len(args) == 2 {
			name = args[1]
		}
		p, ok := a.settings.Registry().Find(name)
		if !ok {
			a.dialog.Notify(ui.LevelWarning, fmt.Sprintf("Preset %q not found", preset.Label(name)))
			return preset.ErrNotFound
		}
		if err := setLock(a, locks.Kind(args[0]), p.Name); err != nil {
			return err
		}
		a.dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Locked %s to %q", args[0], p.Name))
		return a.out.Print(a.locks.Resolve())
	}),
}

var lockClearCmd = &cobra.Command{
	Use:   "clear <chat|character|group>",
	Short: "Remove the current chat, character or group lock",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		if err := setLock(a, locks.Kind(args[0]), ""); err != nil {
			return err
		}
		a.dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Cleared %s lock", args[0]))
		return a.out.Print(a.locks.Resolve())
	}),
}

// setLock writes one lock for the current context; "" removes it.
func setLock(a *app, kind locks.Kind, name string) error {
	current := a.locks.Context()
	switch kind {
	case locks.KindChat:
		if current.ChatID == "" {
			return fmt.Errorf("no chat is open")
		}
		a.lockStore.SetChatLock(name)
	case locks.KindCharacter:
		if current.IsGroupChat || current.CharacterName == "" {
			return fmt.Errorf("no character chat is open")
		}
		a.lockStore.SetCharacterLock(current.CharacterName, name)
	case locks.KindGroup:
		if !current.IsGroupChat {
			return fmt.Errorf("no group chat is open")
		}
		a.lockStore.SetGroupLock(current.GroupID, name)
	default:
		return fmt.Errorf("unknown lock kind %q (want chat, character or group)", kind)
	}
	return nil
}

var defaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Global default preset commands",
}

var defaultSetCmd = &cobra.Command{
	Use:   "set [preset]",
	Short: "Use a preset whenever no lock or selection applies",
	Args:  cobra.MaximumNArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		name := a.settings.Registry().Current()
		if len(args) == 1 {
			name = args[0]
		}
		p, ok := a.settings.Registry().Find(name)
		if !ok {
			a.dialog.Notify(ui.LevelWarning, fmt.Sprintf("Preset %q not found", preset.Label(name)))
			return preset.ErrNotFound
		}
		a.settings.SetGlobalDefault(p.Name)
		a.dialog.Notify(ui.LevelSuccess, fmt.Sprintf("Global default set to %q", p.Name))
		return nil
	}),
}

var defaultClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the global default preset",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		a.settings.SetGlobalDefault("")
		a.dialog.Notify(ui.LevelSuccess, "Global default cleared")
		return nil
	}),
}

func init() {
	lockCmd.AddCommand(lockShowCmd)
	lockCmd.AddCommand(lockSetCmd)
	lockCmd.AddCommand(lockClearCmd)
	rootCmd.AddCommand(lockCmd)

	defaultCmd.AddCommand(defaultSetCmd)
	defaultCmd.AddCommand(defaultClearCmd)
	rootCmd.AddCommand(defaultCmd)
}

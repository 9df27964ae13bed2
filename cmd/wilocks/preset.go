package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/lifecycle"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/preset"
)

var (
	captureSettings bool
	settingsKeys    []string
	exportBooks     string
	exportFile      string
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Preset management commands",
}

// presetRow is one line of `preset list`.
type presetRow struct {
	Name     string   `json:"name" yaml:"name"`
	Books    []string `json:"books" yaml:"books"`
	Settings bool     `json:"settings,omitempty" yaml:"settings,omitempty"`
	Active   bool     `json:"active,omitempty" yaml:"active,omitempty"`
	Default  bool     `json:"default,omitempty" yaml:"default,omitempty"`
	LockedBy []string `json:"locked_by,omitempty" yaml:"locked_by,omitempty"`
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets with active, default and lock markers",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		reg := a.settings.Registry()
		current := ""
		if p, ok := reg.CurrentPreset(); ok {
			current = p.Name
		}
		def := a.settings.GlobalDefault()
		chatLock := a.lockStore.ChatLock()

		rows := make([]presetRow, 0, reg.Len())
		for _, p := range reg.All() {
			row := presetRow{
				Name:     p.Name,
				Books:    p.Books,
				Settings: p.HasEngineSettings(),
				Active:   p.Name == current,
				Default:  preset.SameName(def, p.Name),
			}
			if preset.SameName(chatLock, p.Name) {
				row.LockedBy = append(row.LockedBy, "chat")
			}
			characters, groups := a.settings.LocksFor(p.Name)
			for _, c := range slices.Sorted(maps.Keys(characters)) {
				row.LockedBy = append(row.LockedBy, "character:"+c)
			}
			for _, g := range slices.Sorted(maps.Keys(groups)) {
				row.LockedBy = append(row.LockedBy, "group:"+g)
			}
			rows = append(rows, row)
		}
		return a.out.Print(rows)
	}),
}

var presetCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Save the loaded books as a new preset",
	Long: `Capture the currently loaded books as a new preset and select it.
Prompts for a name when none is given.

Examples:
  wilocks preset create Combat
  wilocks preset create Combat --settings
  wilocks preset create Combat --settings --settings-keys depth,budget`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		p, err := a.lifecycle.Create(ctx, lifecycle.CreateOptions{
			Name:            firstArg(args),
			CaptureSettings: captureSettings || len(settingsKeys) > 0,
			SettingsKeys:    settingsKeys,
		})
		if err != nil {
			return err
		}
		return a.out.Print(p)
	}),
}

var presetUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Overwrite the selected preset with the loaded books",
	Args:  cobra.NoArgs,
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		p, err := a.lifecycle.Update(ctx, captureSettings)
		if err != nil {
			return err
		}
		return a.out.Print(p)
	}),
}

var presetRenameCmd = &cobra.Command{
	Use:   "rename [name] [new-name]",
	Short: "Rename a preset and every lock pointing at it",
	Long: `Rename a preset. With no name the selected preset is renamed; with no new
name you are prompted for one. Chat, character and group locks and the
global default follow the new name.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		var newName string
		if len(args) == 2 {
			newName = args[1]
		}
		return a.lifecycle.Rename(ctx, firstArg(args), newName)
	}),
}

var presetDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a preset and clear every lock pointing at it",
	Args:  cobra.MaximumNArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		return a.lifecycle.Delete(ctx, firstArg(args))
	}),
}

var presetExportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Write a preset as a portable JSON file",
	Long: `Export a preset, its locks and its global-default flag as JSON. With
--books the book files themselves are inlined: "defined" takes the preset's
books, "current" the loaded ones.

The file defaults to <home>/exports/<name>.json; --file - writes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		source, err := lifecycle.ParseBookSource(exportBooks)
		if err != nil {
			return err
		}
		payload, err := a.lifecycle.Export(ctx, firstArg(args), source)
		if err != nil {
			return err
		}
		data, err := payload.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode preset: %w", err)
		}

		if exportFile == "-" {
			_, err := fmt.Fprintln(os.Stdout, string(data))
			return err
		}
		path := exportFile
		if path == "" {
			path = filepath.Join(a.home.ExportsDir(), payload.Name+".json")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		a.logger.Info("export written", "preset", payload.Name, "path", path)
		return a.out.Print(map[string]string{"preset": payload.Name, "path": path})
	}),
}

var presetImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import presets from exported JSON files",
	Long: `Import one or more exported presets, one file at a time. Name
collisions ask whether to overwrite or rename; books, locks and the global
default flag are each confirmed before they are applied. Use - for stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		files := make([]lifecycle.ImportFile, 0, len(args))
		for _, path := range args {
			data, err := readInput(path)
			if err != nil {
				return err
			}
			files = append(files, lifecycle.ImportFile{Source: path, Data: data})
		}
		results, err := a.lifecycle.Import(ctx, files)
		if err != nil {
			return err
		}
		return a.out.Print(results)
	}),
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

func init() {
	presetCreateCmd.Flags().BoolVar(&captureSettings, "settings", false, "also capture engine settings")
	presetCreateCmd.Flags().StringSliceVar(&settingsKeys, "settings-keys", nil, "capture only these engine settings")
	presetUpdateCmd.Flags().BoolVar(&captureSettings, "settings", false, "also recapture engine settings")
	presetExportCmd.Flags().StringVar(&exportBooks, "books", "none", "inline book files: none, defined or current")
	presetExportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "output file (- for stdout)")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetCreateCmd)
	presetCmd.AddCommand(presetUpdateCmd)
	presetCmd.AddCommand(presetRenameCmd)
	presetCmd.AddCommand(presetDeleteCmd)
	presetCmd.AddCommand(presetExportCmd)
	presetCmd.AddCommand(presetImportCmd)
	rootCmd.AddCommand(presetCmd)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/api"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	assumeYes    bool
)

var rootCmd = &cobra.Command{
	Use:   "wilocks",
	Short: "World-info preset manager with per-chat, character and group locks",
	Long: `wilocks keeps named presets of world-info books and engine settings and
switches between them as the conversation changes.

  - Presets capture the loaded books and, optionally, engine settings
  - Locks bind a preset to a chat, a character or a group
  - The global default applies when nothing else is selected
  - watch follows host and book changes and applies locks as they happen`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.wilocks/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "wilocks home directory (default: ~/.wilocks)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", string(api.DefaultOutput), "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&assumeYes, "yes", "y", false, "accept every confirmation and prompt default",
	)

	// Reject a bad output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		_, err := api.ParseFormat(outputFormat)
		return err
	}

	rootCmd.AddCommand(versionCmd)
}

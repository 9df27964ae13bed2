package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/config"
	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/home"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory and a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		path, exists := cfgFile, false
		if path == "" {
			path, exists = h.ConfigPath(), h.ConfigExists()
		} else if _, err := os.Stat(path); err == nil {
			exists = true
		}
		out := cmd.OutOrStdout()
		if exists && !initForce {
			fmt.Fprintf(out, "config already exists: %s\n", path)
			return nil
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "initialized %s\n", h.Path())
		fmt.Fprintf(out, "  config: %s\n", path)
		fmt.Fprintf(out, "  books:  %s\n", h.BooksPath())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

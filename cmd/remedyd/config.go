package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

// configCmd prints the project configuration exactly as an invocation
// in that directory would resolve it, defaults merged with the manifest.
var configCmd = &cobra.Command{
	Use:   "config [dir]",
	Short: "Show the resolved project configuration for a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}

		c, err := buildComponents()
		if err != nil {
			return err
		}
		defer c.logger.Sync()

		snap := config.NewResolver(c.logger).Resolve(abs)
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		cmd.Println(string(data))
		return nil
	},
}

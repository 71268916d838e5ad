// Package main implements the remedyd CLI: the hook entry point invoked
// by the host session plus manual commands for inspecting remediation
// records and resolved configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/dispatch"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/orchestrator"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

var (
	// configPath overrides the global config file location.
	configPath string
	// version information, set at build time.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "remedyd",
	Short: "Checkpoint-protected code-quality remediation pipeline",
	Long: `remedyd runs a fixed chain of code-quality tools over recently changed
files, protected by git checkpoints: the working tree is committed before any
tool may rewrite it, the result is re-parsed, and the tree is either committed
as verified or reverted to its exact pre-run state.

It is designed to be fired by an editing session's lifecycle hooks and never
blocks the host: every pipeline outcome exits 0, and all results are
observable through persisted record artifacts and git history.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "global config file (default ~/.config/remedyd/config.yaml)")
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(configCmd)
}

// components is the shared wiring used by every command.
type components struct {
	settings   *config.Settings
	logger     *zap.Logger
	store      *record.Store
	dispatcher *dispatch.Dispatcher
}

func buildComponents() (*components, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store := record.NewStore(settings.StateDir, logger)
	orch := orchestrator.New(settings, store, logger)
	return &components{
		settings:   settings,
		logger:     logger,
		store:      store,
		dispatcher: dispatch.New(settings, store, orch, logger),
	}, nil
}

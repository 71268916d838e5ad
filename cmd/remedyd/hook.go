package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/dispatch"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// hookCmd is the host-facing entry point. It reads one trigger event as
// JSON from stdin and runs the pipeline.
//
// Exit code contract: 0 for every pipeline outcome, including Failed,
// because the host session must never be blocked by remediation
// results. Non-zero is reserved for a malformed input payload.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Process one trigger event from stdin",
	Long: `Reads a single JSON trigger event from stdin and runs the remediation
pipeline for its working directory.

Payload:
  {"event_id": "...", "event_kind": "PostTurn"|"PostSubtask"|"SessionEnd",
   "occurred_at": "...", "working_directory": "..."}

Examples:
  echo '{"event_id":"e1","event_kind":"PostTurn","working_directory":"/src/app"}' | remedyd hook`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func runHook(cmd *cobra.Command, args []string) error {
	// Parse before building components: a malformed payload is the one
	// case the host is told about via the exit code.
	event, err := parseTriggerStdin(cmd)
	if err != nil {
		return err
	}

	c, err := buildComponents()
	if err != nil {
		// Not the host's problem; report via stderr and exit 0.
		cmd.PrintErrf("remedyd: %v\n", err)
		return nil
	}
	defer c.logger.Sync()

	rec, err := c.dispatcher.Dispatch(cmd.Context(), event)
	if err != nil {
		c.logger.Error("dispatch failed", zap.Error(err))
		return nil
	}
	if rec == nil {
		c.logger.Info("event dropped", zap.String("event_id", event.EventID))
		return nil
	}
	c.logger.Info("invocation complete",
		zap.String("record_id", rec.RecordID),
		zap.String("final_status", string(rec.FinalStatus)),
	)
	return nil
}

// runCmd triggers the pipeline manually for a directory, synthesizing a
// PostTurn event. Useful for trying a manifest without a host session.
var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run the pipeline for a directory now",
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

		event := &record.TriggerEvent{
			EventID:          "manual-" + uuid.New().String(),
			EventKind:        record.EventPostTurn,
			OccurredAt:       time.Now(),
			WorkingDirectory: abs,
		}
		rec, err := c.dispatcher.Dispatch(cmd.Context(), event)
		if err != nil {
			return err
		}
		if rec == nil {
			cmd.Println("dropped (directory busy)")
			return nil
		}
		cmd.Printf("%s  %s\n", rec.RecordID, rec.FinalStatus)
		return nil
	},
}

func parseTriggerStdin(cmd *cobra.Command) (*record.TriggerEvent, error) {
	in := cmd.InOrStdin()
	if in == nil {
		in = os.Stdin
	}
	return dispatch.ParseTrigger(in)
}

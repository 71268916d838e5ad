package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect persisted remediation records",
}

func init() {
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remediation records, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildComponents()
		if err != nil {
			return err
		}
		defer c.logger.Sync()

		records, err := c.store.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			cmd.Println("no records")
			return nil
		}
		for _, rec := range records {
			cmd.Printf("%s  %-14s  %-11s  %3d files  %s\n",
				rec.WrittenAt.Format("2006-01-02 15:04:05"),
				rec.FinalStatus,
				rec.TriggerKind,
				len(rec.ChangeSet.Files),
				rec.WorkingDirectory,
			)
		}
		return nil
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildComponents()
		if err != nil {
			return err
		}
		defer c.logger.Sync()

		rec, err := c.store.Get(args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		cmd.Println(string(data))
		return nil
	},
}

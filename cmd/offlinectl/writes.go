package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsly/offline/internal/models"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List all queued writes, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		writes, err := client.ListPendingWrites(cmd.Context())
		if err != nil {
			return err
		}
		printWrites(cmd, writes)
		return nil
	},
}

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List writes awaiting manual retry or discard",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		writes, err := client.GetFailedWrites(cmd.Context())
		if err != nil {
			return err
		}
		printWrites(cmd, writes)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <write-id>",
	Short: "Re-admit a failed write to the next sync pass",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.RetryWrite(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("write %s re-admitted\n", args[0])
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <write-id>",
	Short: "Abandon a queued write and its attached files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.DiscardWrite(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("write %s discarded\n", args[0])
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run one sync pass against the configured server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Drain(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("attempted %d, synced %d, conflicts %d, failed %d\n",
			result.Attempted, result.Synced, result.Conflicts, result.Failed)
		return nil
	},
}

func printWrites(cmd *cobra.Command, writes []*models.PendingWrite) {
	if len(writes) == 0 {
		cmd.Println("no writes")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPERATION\tMODULE\tSTATUS\tRETRIES\tQUEUED\tERROR")
	for _, pw := range writes {
		queued := time.UnixMilli(pw.Timestamp).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			pw.ID, pw.Operation, pw.Module, pw.Status, pw.Retries, queued, pw.Error)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(pendingCmd, failedCmd, retryCmd, discardCmd, drainCmd)
}

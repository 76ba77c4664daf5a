package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the local store: usage, pressure, queue depths",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.StorageStats(cmd.Context())
		if err != nil {
			return err
		}
		pending, err := client.PendingCount(cmd.Context())
		if err != nil {
			return err
		}

		cmd.Printf("usage:     %s of %s (%.1f%%, %s)\n",
			humanBytes(stats.Usage), humanBytes(stats.Quota),
			stats.UsagePercent, stats.Pressure)
		cmd.Printf("cached:    %d reads\n", stats.CachedReadsCount)
		cmd.Printf("pending:   %d writes (%d awaiting sync)\n", stats.PendingWritesCount, pending)
		cmd.Printf("files:     %d queued\n", stats.QueuedFilesCount)
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicts awaiting a user decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		open := client.OpenConflicts()
		if len(open) == 0 {
			cmd.Println("no open conflicts")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WRITE\tKIND\tUPDATED BY\tUPDATED AT\tMESSAGE")
		for _, c := range open {
			updatedAt := ""
			if c.Details.UpdatedAt != 0 {
				updatedAt = time.UnixMilli(c.Details.UpdatedAt).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				c.WriteID, c.Type, c.Details.UpdatedBy, updatedAt, c.Details.Message)
		}
		w.Flush()
		return nil
	},
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGT"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd, conflictsCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the read cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the cached value for a key, if fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		value, ok := client.GetCachedRead(cmd.Context(), args[0])
		if !ok {
			return fmt.Errorf("no fresh cache entry for %q", args[0])
		}
		cmd.Println(string(value))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the read cache (writes and files survive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.ClearCache(cmd.Context()); err != nil {
			return err
		}
		cmd.Println("read cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheGetCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

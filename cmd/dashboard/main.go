// Command dashboard is the operator's offline view over the append-only chat
// logs: daily summaries, full session transcripts and content searches, all
// read straight from the log directory without touching the running bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logsDir string

	rootCmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "Inspect the bot's chat logs from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&logsDir, "logs-dir", envOr("CHAT_LOGS_DIR", "chat_logs"), "directory holding the daily log files")

	rootCmd.AddCommand(
		newDatesCmd(&logsDir),
		newSummaryCmd(&logsDir),
		newViewCmd(&logsDir),
		newMediaCmd(&logsDir),
		newUserCmd(&logsDir),
		newFlagCmd(&logsDir),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

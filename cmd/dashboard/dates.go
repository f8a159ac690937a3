package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"unknownchat/backend/internal/audit"
)

func newDatesCmd(logsDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List available log dates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dates, err := audit.ListDates(*logsDir)
			if err != nil {
				return err
			}
			if len(dates) == 0 {
				cmd.Println("No log files found.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), []string{"Date", "Sessions", "Messages"})
			for _, date := range dates {
				log, err := audit.LoadDate(*logsDir, date)
				if err != nil {
					return err
				}
				messages := 0
				for _, session := range log.Chats {
					messages += len(session.Messages)
				}
				table.Append([]string{date, strconv.Itoa(len(log.Chats)), strconv.Itoa(messages)})
			}
			table.Render()
			return nil
		},
	}
}

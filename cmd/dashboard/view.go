package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unknownchat/backend/internal/audit"
	"unknownchat/backend/internal/models"
)

func newViewCmd(logsDir *string) *cobra.Command {
	var date, chatID string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "List a day's sessions, or print one session's transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				dates, err := audit.ListDates(*logsDir)
				if err != nil {
					return err
				}
				if len(dates) == 0 {
					cmd.Println("No log files found.")
					return nil
				}
				date = dates[0]
			}
			log, err := audit.LoadDate(*logsDir, date)
			if err != nil {
				return err
			}

			if chatID == "" {
				return listSessions(cmd, date, log)
			}
			session, ok := log.Chats[chatID]
			if !ok {
				return fmt.Errorf("session %s not found on %s", chatID, date)
			}
			printTranscript(cmd, session)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "log date (YYYY-MM-DD), defaults to the most recent")
	cmd.Flags().StringVar(&chatID, "chat", "", "session id to print in full")
	return cmd
}

func listSessions(cmd *cobra.Command, date string, log *audit.DayLog) error {
	cmd.Printf("Sessions on %s:\n", date)
	ids := make([]string, 0, len(log.Chats))
	for id := range log.Chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := newTable(cmd.OutOrStdout(), []string{"Session", "Participants", "Messages", "End Reason"})
	for _, id := range ids {
		session := log.Chats[id]
		table.Append([]string{
			id,
			participantNames(session),
			strconv.Itoa(len(session.Messages)),
			string(session.EndReason),
		})
	}
	table.Render()
	return nil
}

func printTranscript(cmd *cobra.Command, session *models.Session) {
	cmd.Printf("Session between %s\n", participantNames(session))
	if !session.StartedAt.IsZero() {
		cmd.Printf("Started: %s\n", session.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if session.EndedAt != nil {
		cmd.Printf("Ended:   %s (reason: %s)\n", session.EndedAt.Format("2006-01-02 15:04:05"), session.EndReason)
	}
	cmd.Println()

	for i, msg := range session.Messages {
		sender := msg.SenderUsername
		if sender == "" {
			sender = strconv.FormatInt(msg.SenderID, 10)
		}
		content := msg.Content
		if isMedia(msg.Type) {
			content = fmt.Sprintf("[%s] %s", strings.ToUpper(string(msg.Type)), msg.MediaURL)
			if msg.Caption != "" {
				content += "\n   Caption: " + msg.Caption
			}
		}
		cmd.Printf("%d. [%s] %s: %s\n", i+1, msg.Timestamp.Format("15:04:05"), sender, content)
	}
}

func participantNames(session *models.Session) string {
	names := make([]string, 0, len(session.Users))
	for _, u := range session.Users {
		name := u.Username
		if name == "" {
			name = strconv.FormatInt(u.ID, 10)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, " & ")
}

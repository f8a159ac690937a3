package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unknownchat/backend/internal/models"
)

func newMediaCmd(logsDir *string) *cobra.Command {
	var days int
	var csvPath string

	cmd := &cobra.Command{
		Use:   "media",
		Short: "List media shared in recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recent, err := loadRecent(*logsDir, days)
			if err != nil {
				return err
			}

			type mediaRow struct {
				date, session, sender string
				msgType               models.MessageType
				url, caption          string
			}
			var rows []mediaRow
			for _, d := range recent {
				for sessionID, session := range d.Log.Chats {
					for _, msg := range session.Messages {
						if !isMedia(msg.Type) || msg.MediaURL == "" {
							continue
						}
						sender := msg.SenderUsername
						if sender == "" {
							sender = strconv.FormatInt(msg.SenderID, 10)
						}
						rows = append(rows, mediaRow{d.Date, sessionID, sender, msg.Type, msg.MediaURL, msg.Caption})
					}
				}
			}
			if len(rows) == 0 {
				cmd.Println("No media found.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), []string{"Date", "Sender", "Type", "Reference"})
			for _, r := range rows {
				table.Append([]string{r.date, r.sender, string(r.msgType), truncate(r.url, 50)})
			}
			table.Render()

			if csvPath == "" {
				return nil
			}
			f, err := os.Create(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()
			w := csv.NewWriter(f)
			if err := w.Write([]string{"date", "session_id", "sender", "type", "reference", "caption"}); err != nil {
				return err
			}
			for _, r := range rows {
				if err := w.Write([]string{r.date, r.session, r.sender, string(r.msgType), r.url, r.caption}); err != nil {
					return err
				}
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return err
			}
			cmd.Printf("Exported %d rows to %s\n", len(rows), csvPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of most recent days to search")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also export the results to this CSV file")
	return cmd
}

func newUserCmd(logsDir *string) *cobra.Command {
	var days int
	var userID int64
	var username string

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show one participant's session history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == 0 && username == "" {
				return fmt.Errorf("either --id or --name is required")
			}
			recent, err := loadRecent(*logsDir, days)
			if err != nil {
				return err
			}

			type sessionRow struct {
				date, partner   string
				messages, media int
			}
			var rows []sessionRow
			totalMessages, totalMedia := 0, 0

			for _, d := range recent {
				for _, session := range d.Log.Chats {
					foundID, partner, ok := findParticipant(session, userID, username)
					if !ok {
						continue
					}
					// Resolving a name pins the numeric id for the rest of
					// the scan.
					userID = foundID

					messages, media := 0, 0
					for _, msg := range session.Messages {
						if msg.SenderID != foundID {
							continue
						}
						messages++
						if isMedia(msg.Type) {
							media++
						}
					}
					rows = append(rows, sessionRow{d.Date, partner, messages, media})
					totalMessages += messages
					totalMedia += media
				}
			}
			if len(rows) == 0 {
				cmd.Println("Participant not found in the logs.")
				return nil
			}

			cmd.Printf("Sessions: %d\nMessages sent: %d\nMedia sent: %d\n\n", len(rows), totalMessages, totalMedia)
			table := newTable(cmd.OutOrStdout(), []string{"Date", "Partner", "Messages", "Media"})
			for _, r := range rows {
				table.Append([]string{r.date, r.partner, strconv.Itoa(r.messages), strconv.Itoa(r.media)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "number of most recent days to search")
	cmd.Flags().Int64Var(&userID, "id", 0, "participant id")
	cmd.Flags().StringVar(&username, "name", "", "participant display name (case-insensitive)")
	return cmd
}

// findParticipant matches by id or name and returns the matched id and the
// other side's name.
func findParticipant(session *models.Session, userID int64, username string) (int64, string, bool) {
	var foundID int64
	for _, u := range session.Users {
		if userID != 0 && u.ID == userID {
			foundID = u.ID
			break
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			foundID = u.ID
			break
		}
	}
	if foundID == 0 {
		return 0, "", false
	}
	partner := "unknown"
	for _, u := range session.Users {
		if u.ID == foundID {
			continue
		}
		partner = u.Username
		if partner == "" {
			partner = strconv.FormatInt(u.ID, 10)
		}
	}
	return foundID, partner, true
}

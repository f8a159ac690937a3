package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"unknownchat/backend/internal/models"
)

const topActiveUsers = 10

func newSummaryCmd(logsDir *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show chat activity totals for the most recent days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recent, err := loadRecent(*logsDir, days)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				cmd.Println("No log files found.")
				return nil
			}

			totalSessions, totalMessages := 0, 0
			typeCounts := map[models.MessageType]int{}
			activity := map[int64]int{}

			for _, d := range recent {
				sessions := len(d.Log.Chats)
				messages := 0
				for _, session := range d.Log.Chats {
					messages += len(session.Messages)
					for _, msg := range session.Messages {
						typeCounts[msg.Type]++
						activity[msg.SenderID]++
					}
				}
				totalSessions += sessions
				totalMessages += messages
				cmd.Printf("%s: %d sessions, %d messages\n", d.Date, sessions, messages)
			}

			cmd.Printf("\nDays analyzed: %d\nTotal sessions: %d\nTotal messages: %d\n\n", len(recent), totalSessions, totalMessages)
			if totalMessages == 0 {
				return nil
			}

			types := newTable(cmd.OutOrStdout(), []string{"Type", "Count", "Share"})
			for _, t := range []models.MessageType{
				models.MessageText, models.MessagePhoto, models.MessageVideo,
				models.MessageSticker, models.MessageVoice, models.MessageDocument,
				models.MessageAudio, models.MessageAnimation, models.MessageVideoNote,
			} {
				if typeCounts[t] == 0 {
					continue
				}
				types.Append([]string{
					string(t),
					strconv.Itoa(typeCounts[t]),
					fmt.Sprintf("%.1f%%", float64(typeCounts[t])/float64(totalMessages)*100),
				})
			}
			types.Render()

			type userCount struct {
				id    int64
				count int
			}
			top := make([]userCount, 0, len(activity))
			for id, count := range activity {
				top = append(top, userCount{id, count})
			}
			sort.Slice(top, func(i, j int) bool { return top[i].count > top[j].count })
			if len(top) > topActiveUsers {
				top = top[:topActiveUsers]
			}

			cmd.Println("\nMost active participants:")
			users := newTable(cmd.OutOrStdout(), []string{"Participant", "Messages", "Share"})
			for _, u := range top {
				users.Append([]string{
					strconv.FormatInt(u.id, 10),
					strconv.Itoa(u.count),
					fmt.Sprintf("%.1f%%", float64(u.count)/float64(totalMessages)*100),
				})
			}
			users.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "number of most recent days to analyze")
	return cmd
}

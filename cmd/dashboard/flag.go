package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// defaultKeywords seeds the content scan. Operators extend the list with
// --keyword flags.
var defaultKeywords = []string{"weapon", "abuse", "terrorist", "bomb", "kill", "threat"}

func newFlagCmd(logsDir *string) *cobra.Command {
	var days int
	var extra []string

	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Scan recent messages for keywords that warrant review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keywords := append(append([]string{}, defaultKeywords...), extra...)
			recent, err := loadRecent(*logsDir, days)
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), []string{"Date", "Session", "Sender", "Keyword", "Content"})
			flagged := 0
			for _, d := range recent {
				for sessionID, session := range d.Log.Chats {
					for _, msg := range session.Messages {
						content := strings.ToLower(msg.Content)
						caption := strings.ToLower(msg.Caption)
						for _, keyword := range keywords {
							if !strings.Contains(content, keyword) && !strings.Contains(caption, keyword) {
								continue
							}
							sender := msg.SenderUsername
							if sender == "" {
								sender = strconv.FormatInt(msg.SenderID, 10)
							}
							shown := msg.Content
							if shown == "" {
								shown = "[" + strings.ToUpper(string(msg.Type)) + "] " + msg.Caption
							}
							table.Append([]string{d.Date, sessionID, sender, keyword, truncate(shown, 60)})
							flagged++
							break
						}
					}
				}
			}
			if flagged == 0 {
				cmd.Println("Nothing flagged.")
				return nil
			}
			table.Render()
			cmd.Printf("\n%d message(s) flagged across %d day(s).\n", flagged, len(recent))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of most recent days to scan")
	cmd.Flags().StringSliceVar(&extra, "keyword", nil, "additional keyword to scan for (repeatable)")
	return cmd
}

package main

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"unknownchat/backend/internal/audit"
	"unknownchat/backend/internal/models"
)

// day pairs a date string with its loaded log.
type day struct {
	Date string
	Log  *audit.DayLog
}

// loadRecent reads up to `days` newest log files.
func loadRecent(dir string, days int) ([]day, error) {
	dates, err := audit.ListDates(dir)
	if err != nil {
		return nil, err
	}
	if days > 0 && len(dates) > days {
		dates = dates[:days]
	}
	out := make([]day, 0, len(dates))
	for _, date := range dates {
		log, err := audit.LoadDate(dir, date)
		if err != nil {
			return nil, err
		}
		out = append(out, day{Date: date, Log: log})
	}
	return out, nil
}

func isMedia(t models.MessageType) bool {
	return t != models.MessageText
}

// newTable builds a borderless left-aligned table, the house style for all
// dashboard output.
func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

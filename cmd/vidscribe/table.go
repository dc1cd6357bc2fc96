package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table column. Cells are left aligned unless align says
// otherwise.
type column struct {
	title string
	align text.Align
}

var (
	runColumns = []column{
		{title: "ID"},
		{title: "Status"},
		{title: "Started"},
		{title: "Elapsed", align: text.AlignRight},
		{title: "Speakers", align: text.AlignRight},
		{title: "URL"},
	}
	tierColumns = []column{
		{title: "Memory"},
		{title: "Profile"},
		{title: "Precision"},
		{title: "Beam", align: text.AlignRight},
		{title: ""},
	}
)

// renderTable draws rows under columns. Short rows are padded and extra
// cells dropped so every row matches the header.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		align := col.align
		if align == text.AlignDefault {
			align = text.AlignLeft
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

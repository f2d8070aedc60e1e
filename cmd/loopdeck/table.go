package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable draws a rounded table. Columns listed in numeric (0-based) are
// right aligned; rows shorter than the header are padded.
func renderTable(headers []string, rows [][]string, numeric ...int) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(padRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(padRow(row, len(headers)))
	}
	columns := make([]table.ColumnConfig, 0, len(numeric))
	for _, col := range numeric {
		columns = append(columns, table.ColumnConfig{Number: col + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(columns)
	return tw.Render() + "\n"
}

func padRow(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
	}
	for i, v := range values[:min(len(values), width)] {
		row[i] = v
	}
	return row
}

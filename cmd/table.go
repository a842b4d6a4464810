package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// tableOptions shapes a rendered table. Column numbers are 1-based.
type tableOptions struct {
	numeric []int
	// status names the column holding a model.RowStatus. Zero leaves rows plain.
	status int
	colour bool
}

var statusColours = map[model.RowStatus]text.Colors{
	model.RowCommitted: {text.FgGreen},
	model.RowQueued:    {text.FgYellow},
	model.RowError:     {text.FgRed},
}

// renderTable draws rows under headers. Headers keep the case they are given.
func renderTable(headers []string, rows [][]string, opts tableOptions) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(cells(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(cells(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, 0, len(opts.numeric))
	for _, n := range opts.numeric {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	if opts.colour && opts.status > 0 && opts.status <= len(headers) {
		col := opts.status - 1
		tw.SetRowPainter(table.RowPainter(func(row table.Row) text.Colors {
			status, _ := row[col].(string)
			return statusColours[model.RowStatus(status)]
		}))
	}
	return tw.Render()
}

// cells pads or truncates values to width.
func cells(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

// colourOutput reports whether w is a terminal that should receive ANSI colour.
func colourOutput(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

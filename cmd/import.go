package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/ingest"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

func newImportCommand(cc *commandContext) *cobra.Command {
	var (
		submittedBy string
		jsonOutput  bool
		all         bool
	)
	cmd := &cobra.Command{
		Use:   "import <file.csv|->",
		Short: "Validate and commit a CSV file against the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := cc.load(ctx)
			if err != nil {
				return err
			}

			rows, err := readRows(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			svc, cleanup, err := buildService(ctx, cfg)
			defer cleanup()
			if err != nil {
				return err
			}
			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			defer svc.Stop()

			res, err := svc.Import(ctx, rows, submittedBy)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(out, renderImportResult(res, all, colourOutput(out)))
			return err
		},
	}
	cmd.Flags().StringVar(&submittedBy, "submitted-by", "", "staff ID recorded on every row")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "list committed rows too")
	return cmd
}

func readRows(stdin io.Reader, path string) ([]model.RawRow, error) {
	if path == "-" {
		return ingest.ReadCSV(stdin)
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	rows, err := ingest.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// renderImportResult prints the counters followed by one line per row that
// needs attention, or every row when all is set. Rows are coloured by outcome
// when colour is set.
func renderImportResult(res model.BatchImportResult, all, colour bool) string {
	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"Total", "Committed", "Queued", "Errors"},
		[][]string{{
			strconv.Itoa(res.Total),
			strconv.Itoa(res.Committed),
			strconv.Itoa(res.Duplicates),
			strconv.Itoa(res.Errors),
		}},
		tableOptions{numeric: []int{1, 2, 3, 4}},
	))

	rows := make([][]string, 0, len(res.Rows))
	for _, o := range res.Rows {
		if o.Status == model.RowCommitted && !all {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(o.Row),
			string(o.Status),
			firstNonEmpty(o.RecordID, o.ReviewItemID),
			rowDetail(o),
		})
	}
	if len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable(
			[]string{"Row", "Status", "ID", "Detail"},
			rows,
			tableOptions{numeric: []int{1}, status: 2, colour: colour},
		))
	}
	return b.String()
}

func rowDetail(o model.RowOutcome) string { //nolint:gocritic // read-only view
	switch {
	case o.IssueType != "":
		return string(o.IssueType)
	case len(o.Issues) > 0:
		parts := make([]string, 0, len(o.Issues))
		for _, is := range o.Issues {
			parts = append(parts, string(is.Field)+": "+is.Issue)
		}
		return strings.Join(parts, "; ")
	case o.Error != "":
		return o.Error
	case len(o.Warnings) > 0:
		return string(o.Warnings[0].Field) + ": " + o.Warnings[0].Issue
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// exportHeader is the column order of WriteCSV.
var exportHeader = []string{ //nolint:gochecknoglobals // fixed column order
	"Full Name", "Phone Number", "Email", "Location", "Company", "Job Title", "Source", "Submitted By", "Timestamp",
}

// WriteCSV writes records as a spreadsheet-friendly CSV with a header row.
func WriteCSV(w io.Writer, records []model.AttendeeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		r := &records[i]
		row := make([]string, 0, len(exportHeader))
		for _, f := range model.Fields {
			row = append(row, r.Get(f))
		}
		row = append(row, string(r.Source), r.SubmittedBy, r.Timestamp.UTC().Format(time.RFC3339))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Package ingest turns uploaded attendee lists into import rows.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// Sentinel errors.
var (
	ErrNoHeader      = errors.New("csv has no header row")
	ErrNoKnownColumn = errors.New("csv header names no attendee field")
)

// MaxRows caps a single upload.
const MaxRows = 10000

// headerAliases maps a folded header (lowercase, letters and digits only) to
// a field.
var headerAliases = map[string]model.Field{ //nolint:gochecknoglobals // static lookup table
	"fullname":     model.FieldFullName,
	"name":         model.FieldFullName,
	"attendee":     model.FieldFullName,
	"phonenumber":  model.FieldPhoneNumber,
	"phone":        model.FieldPhoneNumber,
	"mobile":       model.FieldPhoneNumber,
	"tel":          model.FieldPhoneNumber,
	"email":        model.FieldEmail,
	"emailaddress": model.FieldEmail,
	"mail":         model.FieldEmail,
	"location":     model.FieldLocation,
	"city":         model.FieldLocation,
	"country":      model.FieldLocation,
	"company":      model.FieldCompany,
	"organization": model.FieldCompany,
	"organisation": model.FieldCompany,
	"jobtitle":     model.FieldJobTitle,
	"title":        model.FieldJobTitle,
	"role":         model.FieldJobTitle,
}

// HeaderField resolves a column header to a field. Case, spaces, dashes and
// underscores are ignored, so "Full Name", "full_name" and "fullName" agree.
func HeaderField(header string) (model.Field, bool) {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(header, "\ufeff") {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	f, ok := headerAliases[b.String()]
	return f, ok
}

// ReadCSV parses r into rows. Unknown columns are ignored. Values are passed
// through untouched for the normalizer.
//
// rows[i] comes from line i+1 below the header. Blank lines, including the
// empty ones the csv reader drops, hold a nil row so that import outcomes keep
// the numbering of the source file.
func ReadCSV(r io.Reader) ([]model.RawRow, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	headerLine, _ := reader.FieldPos(len(header) - 1)

	cols := make(map[int]model.Field, len(header))
	seen := make(map[model.Field]bool, len(header))
	for i, h := range header {
		// The first column naming a field wins.
		if f, ok := HeaderField(h); ok && !seen[f] {
			cols[i] = f
			seen[f] = true
		}
	}
	if len(cols) == 0 {
		return nil, ErrNoKnownColumn
	}

	var rows []model.RawRow
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		n := line - headerLine
		if n > MaxRows {
			return nil, fmt.Errorf("csv exceeds %d rows", MaxRows)
		}
		for len(rows) < n-1 {
			rows = append(rows, nil)
		}
		if blank(rec) {
			rows = append(rows, nil)
			continue
		}
		row := make(model.RawRow, len(cols))
		for i, f := range cols {
			if i < len(rec) {
				row[f] = rec[i]
			}
		}
		rows = append(rows, row)
	}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

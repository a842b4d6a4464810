package model

import (
	"math"
	"time"
)

// ExtractedField is one value read by the optical extraction collaborator.
type ExtractedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the structured output of one optical extraction call.
type Extraction map[Field]ExtractedField

// Candidate converts the extraction into an OCR candidate. It fails with an
// *ExtractionError when nothing was extracted or a confidence is unusable;
// no partial candidate is returned in that case.
func (e Extraction) Candidate(at time.Time) (AttendeeRecord, error) {
	if len(e) == 0 {
		return AttendeeRecord{}, &ExtractionError{Reason: "no fields extracted"}
	}
	rec := AttendeeRecord{
		Source:          SourceOCR,
		Timestamp:       at,
		FieldConfidence: make(map[Field]float64, len(e)),
	}
	known := 0
	for _, f := range Fields {
		ef, ok := e[f]
		if !ok {
			continue
		}
		c := ef.Confidence
		if math.IsNaN(c) || c < 0 || c > MaxConfidence {
			return AttendeeRecord{}, &ExtractionError{Field: f, Reason: "confidence out of range"}
		}
		rec.Set(f, ef.Value)
		rec.FieldConfidence[f] = c
		known++
	}
	if known == 0 {
		return AttendeeRecord{}, &ExtractionError{Reason: "no known fields extracted"}
	}
	return rec, nil
}

// RawRow is one externally parsed import row keyed by field name. A nil row
// stands for a blank source line: batches skip it but keep its number.
type RawRow map[Field]string

// Candidate converts the row into an IMPORT candidate.
func (r RawRow) Candidate(at time.Time) AttendeeRecord {
	rec := AttendeeRecord{Source: SourceImport, Timestamp: at}
	for _, f := range Fields {
		rec.Set(f, r[f])
	}
	return rec
}

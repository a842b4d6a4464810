// Package model contains domain models passed between layers.
package model

import (
	"time"
)

// Source identifies the intake path a record arrived through.
type Source string

// Intake sources.
const (
	SourceManual Source = "MANUAL"
	SourceOCR    Source = "OCR"
	SourceImport Source = "IMPORT"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceOCR, SourceImport:
		return true
	}
	return false
}

// Field names an attendee attribute. The values double as JSON keys.
type Field string

// Attendee fields.
const (
	FieldFullName    Field = "fullName"
	FieldPhoneNumber Field = "phoneNumber"
	FieldEmail       Field = "email"
	FieldLocation    Field = "location"
	FieldCompany     Field = "company"
	FieldJobTitle    Field = "jobTitle"
)

// Fields lists every attendee field in display order.
var Fields = []Field{ //nolint:gochecknoglobals // fixed field list
	FieldFullName,
	FieldPhoneNumber,
	FieldEmail,
	FieldLocation,
	FieldCompany,
	FieldJobTitle,
}

// MaxConfidence is the confidence assumed for any field without an explicit score.
const MaxConfidence = 100.0

// AttendeeRecord is the canonical unit of attendee data. Before commit it is
// a candidate: ID is empty and the value travels by copy.
type AttendeeRecord struct {
	ID          string `json:"id,omitempty"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Location    string `json:"location"`
	Company     string `json:"company"`
	JobTitle    string `json:"jobTitle"`

	Source          Source            `json:"source"`
	FieldConfidence map[Field]float64 `json:"fieldConfidence,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	SubmittedBy     string            `json:"submittedBy,omitempty"`

	// DuplicateOverride marks records committed by an explicit human approval.
	DuplicateOverride bool     `json:"duplicateOverride,omitempty"`
	OriginReviewID    string   `json:"originReviewId,omitempty"`
	MergedFrom        []string `json:"mergedFrom,omitempty"`

	SupersededBy string     `json:"supersededBy,omitempty"`
	SupersededAt *time.Time `json:"supersededAt,omitempty"`
}

// Get returns the value of field f.
func (r *AttendeeRecord) Get(f Field) string {
	switch f {
	case FieldFullName:
		return r.FullName
	case FieldPhoneNumber:
		return r.PhoneNumber
	case FieldEmail:
		return r.Email
	case FieldLocation:
		return r.Location
	case FieldCompany:
		return r.Company
	case FieldJobTitle:
		return r.JobTitle
	}
	return ""
}

// Set assigns v to field f. Only used on candidates and fresh copies.
func (r *AttendeeRecord) Set(f Field, v string) {
	switch f {
	case FieldFullName:
		r.FullName = v
	case FieldPhoneNumber:
		r.PhoneNumber = v
	case FieldEmail:
		r.Email = v
	case FieldLocation:
		r.Location = v
	case FieldCompany:
		r.Company = v
	case FieldJobTitle:
		r.JobTitle = v
	}
}

// Confidence returns the extraction confidence for f, MaxConfidence when absent.
func (r *AttendeeRecord) Confidence(f Field) float64 {
	if c, ok := r.FieldConfidence[f]; ok {
		return c
	}
	return MaxConfidence
}

// Active reports whether the record has not been superseded.
func (r *AttendeeRecord) Active() bool {
	return r.SupersededBy == ""
}

// Clone returns a deep copy so callers never share maps or slices with a stored value.
func (r AttendeeRecord) Clone() AttendeeRecord { //nolint:gocritic // value receiver returns an independent copy
	out := r
	if r.FieldConfidence != nil {
		out.FieldConfidence = make(map[Field]float64, len(r.FieldConfidence))
		for k, v := range r.FieldConfidence {
			out.FieldConfidence[k] = v
		}
	}
	if r.MergedFrom != nil {
		out.MergedFrom = append([]string(nil), r.MergedFrom...)
	}
	if r.SupersededAt != nil {
		at := *r.SupersededAt
		out.SupersededAt = &at
	}
	return out
}

// Corrections carries reviewer edits applied to a candidate before approval.
// Fields absent from the map keep the candidate value. A field mapped to the
// empty string is cleared.
type Corrections map[Field]string

// Apply returns a copy of r with the corrections applied. Corrected fields
// lose their extraction confidence since a human has confirmed them.
func (c Corrections) Apply(r AttendeeRecord) AttendeeRecord { //nolint:gocritic // candidate copied by value
	out := r.Clone()
	for f, v := range c {
		out.Set(f, v)
		delete(out.FieldConfidence, f)
	}
	if len(out.FieldConfidence) == 0 {
		out.FieldConfidence = nil
	}
	return out
}

// Package normalize canonicalizes attendee field text before comparison or storage.
package normalize

import (
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// maxPasses bounds the fixed-point loop in stable.
const maxPasses = 4

// Record returns a normalized copy of r. It never fails: malformed values are
// left for validation to reject.
func Record(r model.AttendeeRecord) model.AttendeeRecord { //nolint:gocritic // pure function over a value
	out := r.Clone()
	out.FullName = Text(r.FullName)
	out.PhoneNumber = Phone(r.PhoneNumber)
	out.Email = Email(r.Email)
	out.Location = Text(r.Location)
	out.Company = Text(r.Company)
	out.JobTitle = Text(r.JobTitle)
	out.SubmittedBy = strings.TrimSpace(r.SubmittedBy)
	return out
}

// Text trims surrounding whitespace and composes the value to NFC.
func Text(s string) string {
	return stable(s, func(v string) string {
		return strings.TrimSpace(norm.NFC.String(v))
	})
}

// Email folds compatibility forms (full-width characters from OCR), lower-cases
// and trims the value.
func Email(s string) string {
	return stable(s, func(v string) string {
		folded, _, err := transform.String(norm.NFKC, v)
		if err != nil {
			folded = v
		}
		return strings.TrimSpace(strings.ToLower(folded))
	})
}

// Phone keeps only the digits, retaining a leading '+'. A bare '+' is absent.
func Phone(s string) string {
	v := strings.TrimSpace(norm.NFKC.String(s))
	if v == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(v))
	if v[0] == '+' {
		b.WriteByte('+')
	}
	digits := 0
	for i := 0; i < len(v); i++ {
		if c := v[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	return b.String()
}

// stable applies fn until the value stops changing so that normalizing a
// normalized value is always a no-op.
func stable(s string, fn func(string) string) string {
	cur := fn(s)
	for i := 0; i < maxPasses; i++ {
		next := fn(cur)
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

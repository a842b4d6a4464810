// Package validation performs the structural checks a candidate must pass
// before it may touch the review queue or the record store.
package validation

import (
	"regexp"
	"strings"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// Issue texts surfaced to submitters.
const (
	IssueMissingName        = "Missing Full Name"
	IssueMissingEmail       = "Missing Email"
	IssueInvalidEmail       = "Invalid format"
	IssueMissingCountryCode = "Missing country code"
)

// emailPattern accepts the usual local@domain form, including quoted local
// parts and bracketed IPv4 literals.
var emailPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// Result holds the outcome of a structural check.
type Result struct {
	Issues   []model.FieldIssue
	Warnings []model.FieldIssue
}

// Err returns a *model.ValidationError when blocking issues were found.
func (r Result) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	return &model.ValidationError{Issues: r.Issues}
}

// Check validates a normalized candidate. Name and email are required; the
// phone format is advisory and only produces warnings.
func Check(r *model.AttendeeRecord) Result {
	var res Result
	if strings.TrimSpace(r.FullName) == "" {
		res.Issues = append(res.Issues, model.FieldIssue{Field: model.FieldFullName, Issue: IssueMissingName})
	}
	email := strings.TrimSpace(r.Email)
	switch {
	case email == "":
		res.Issues = append(res.Issues, model.FieldIssue{Field: model.FieldEmail, Issue: IssueMissingEmail})
	case !ValidEmail(email):
		res.Issues = append(res.Issues, model.FieldIssue{Field: model.FieldEmail, Issue: IssueInvalidEmail, Value: r.Email})
	}
	if p := strings.TrimSpace(r.PhoneNumber); p != "" && !strings.HasPrefix(p, "+") {
		res.Warnings = append(res.Warnings, model.FieldIssue{Field: model.FieldPhoneNumber, Issue: IssueMissingCountryCode, Value: p})
	}
	return res
}

// ValidEmail reports whether s looks like an email address. Matching is
// done on the lower-cased value.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.ToLower(s))
}

package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Typed errors below match them through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrExtraction        = errors.New("extraction failed")
	ErrDuplicateConflict = errors.New("duplicate conflict")
	ErrStaleResolution   = errors.New("review item already resolved")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid review transition")
	ErrSuperseded        = errors.New("record already superseded")
)

// FieldIssue is one structural problem found on a candidate.
type FieldIssue struct {
	Field Field  `json:"field"`
	Issue string `json:"issue"`
	Value string `json:"value,omitempty"`
}

// ValidationError lists every blocking issue found on a candidate.
type ValidationError struct {
	Issues []FieldIssue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Field, is.Issue))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ExtractionError reports unusable optical extraction output.
type ExtractionError struct {
	Field  Field
	Reason string
}

func (e *ExtractionError) Error() string {
	if e.Field == "" {
		return "extraction failed: " + e.Reason
	}
	return fmt.Sprintf("extraction failed: %s: %s", e.Field, e.Reason)
}

// Is matches ErrExtraction.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// DuplicateConflictError describes a candidate routed to review instead of
// being committed. It is a routing outcome, never returned as a failure.
type DuplicateConflictError struct {
	ReviewItemID string
	IssueType    IssueType
	MatchID      string
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("duplicate conflict: %s against %s (review item %s)", e.IssueType, e.MatchID, e.ReviewItemID)
}

// Is matches ErrDuplicateConflict.
func (e *DuplicateConflictError) Is(target error) bool { return target == ErrDuplicateConflict }

// StaleResolutionError is returned when acting on a review item that is no
// longer PENDING. Callers treat it as "already resolved".
type StaleResolutionError struct {
	ItemID string
	Status ReviewStatus
}

func (e *StaleResolutionError) Error() string {
	return fmt.Sprintf("review item %s already resolved as %s", e.ItemID, e.Status)
}

// Is matches ErrStaleResolution.
func (e *StaleResolutionError) Is(target error) bool { return target == ErrStaleResolution }

// Unavailable wraps a store failure so it matches ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

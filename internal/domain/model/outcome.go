package model

// IntakeStatus is the routing decision made for one candidate.
type IntakeStatus string

// Intake routing decisions.
const (
	IntakeCommitted IntakeStatus = "COMMITTED"
	IntakeQueued    IntakeStatus = "QUEUED"
)

// MatchVerdict is the duplicate matcher's classification.
type MatchVerdict string

// Match verdicts.
const (
	MatchNone      MatchVerdict = "NONE"
	MatchDuplicate MatchVerdict = "DUPLICATE"
	MatchUncertain MatchVerdict = "UNCERTAIN_MATCH"
)

// IntakeOutcome reports what happened to a submitted candidate.
type IntakeOutcome struct {
	Status       IntakeStatus    `json:"status"`
	Record       *AttendeeRecord `json:"record,omitempty"`
	ReviewItem   *ReviewItem     `json:"reviewItem,omitempty"`
	Match        MatchVerdict    `json:"match"`
	MediumFields []Field         `json:"mediumFields,omitempty"`
	Warnings     []FieldIssue    `json:"warnings,omitempty"`
}

// Conflict returns the routing marker for queued duplicate outcomes, nil otherwise.
func (o *IntakeOutcome) Conflict() *DuplicateConflictError {
	if o.Status != IntakeQueued || o.ReviewItem == nil || !o.ReviewItem.IssueType.Mergeable() {
		return nil
	}
	return &DuplicateConflictError{
		ReviewItemID: o.ReviewItem.ID,
		IssueType:    o.ReviewItem.IssueType,
		MatchID:      o.ReviewItem.SuggestedMatchID,
	}
}

// RowStatus is the per-row outcome of a batch import.
type RowStatus string

// Row outcomes.
const (
	RowCommitted RowStatus = "COMMITTED"
	RowQueued    RowStatus = "QUEUED"
	RowError     RowStatus = "ERROR"
)

// RowOutcome is the classification of one import row.
type RowOutcome struct {
	// Row is the 1-based position in the submitted rows. For CSV uploads it is
	// the line number counted from the header.
	Row          int          `json:"row"`
	Status       RowStatus    `json:"status"`
	RecordID     string       `json:"recordId,omitempty"`
	ReviewItemID string       `json:"reviewItemId,omitempty"`
	IssueType    IssueType    `json:"issueType,omitempty"`
	Issues       []FieldIssue `json:"issues,omitempty"`
	Warnings     []FieldIssue `json:"warnings,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// BatchImportResult aggregates one import run. It is never persisted.
type BatchImportResult struct {
	Total      int          `json:"total"`
	Committed  int          `json:"committed"`
	Duplicates int          `json:"duplicates"`
	Errors     int          `json:"errors"`
	Rows       []RowOutcome `json:"rows"`
}

// Add appends a row outcome and updates the counters.
func (r *BatchImportResult) Add(o RowOutcome) { //nolint:gocritic // outcome stored by value
	r.Total++
	switch o.Status {
	case RowCommitted:
		r.Committed++
	case RowQueued:
		r.Duplicates++
	case RowError:
		r.Errors++
	}
	r.Rows = append(r.Rows, o)
}

// ExportSnapshot is the authoritative view handed to export consumers.
type ExportSnapshot struct {
	Records       []AttendeeRecord `json:"records"`
	PendingReview int              `json:"pendingReview"`
	Warning       string           `json:"warning,omitempty"`
}

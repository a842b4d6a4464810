package model

import "time"

// IssueType explains why a candidate could not be auto-committed.
type IssueType string

// Review issue types.
const (
	IssueLowConfidence  IssueType = "LOW_CONFIDENCE"
	IssueDuplicate      IssueType = "DUPLICATE"
	IssueUncertainMatch IssueType = "UNCERTAIN_MATCH"
)

// Valid reports whether t is a known issue type.
func (t IssueType) Valid() bool {
	switch t {
	case IssueLowConfidence, IssueDuplicate, IssueUncertainMatch:
		return true
	}
	return false
}

// Mergeable reports whether items of this type may be resolved by merge.
func (t IssueType) Mergeable() bool {
	return t == IssueDuplicate || t == IssueUncertainMatch
}

// ReviewStatus is the state of a review item.
type ReviewStatus string

// Review item states. Everything except PENDING is terminal.
const (
	StatusPending  ReviewStatus = "PENDING"
	StatusApproved ReviewStatus = "APPROVED"
	StatusRejected ReviewStatus = "REJECTED"
	StatusMerged   ReviewStatus = "MERGED"
)

// Terminal reports whether no further transition is allowed from s.
func (s ReviewStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusMerged
}

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// ReviewItem is a pending decision about one candidate.
type ReviewItem struct {
	ID               string         `json:"id"`
	Candidate        AttendeeRecord `json:"candidate"`
	IssueType        IssueType      `json:"issueType"`
	SuggestedMatchID string         `json:"suggestedMatchId,omitempty"`
	LowFields        []Field        `json:"lowFields,omitempty"`
	MatchCount       int            `json:"matchCount,omitempty"`
	SubmittedBy      string         `json:"submittedBy,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	Status           ReviewStatus   `json:"status"`

	ResolvedBy     string     `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	ResultRecordID string     `json:"resultRecordId,omitempty"`
}

// Resolution describes the terminal transition applied to a review item.
type Resolution struct {
	Status         ReviewStatus
	ResolvedBy     string
	ResolvedAt     time.Time
	ResultRecordID string
}

// Resolve returns a copy of item with res applied.
func (item ReviewItem) Resolve(res Resolution) ReviewItem { //nolint:gocritic // value semantics intended
	out := item
	out.Candidate = item.Candidate.Clone()
	if item.LowFields != nil {
		out.LowFields = append([]Field(nil), item.LowFields...)
	}
	at := res.ResolvedAt
	out.Status = res.Status
	out.ResolvedBy = res.ResolvedBy
	out.ResolvedAt = &at
	out.ResultRecordID = res.ResultRecordID
	return out
}

// ReviewFilter narrows review item listings. Zero values match everything.
type ReviewFilter struct {
	Status    ReviewStatus
	IssueType IssueType
	Limit     int
}

// Matches reports whether item passes the filter (ignoring Limit).
func (f ReviewFilter) Matches(item *ReviewItem) bool {
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.IssueType != "" && item.IssueType != f.IssueType {
		return false
	}
	return true
}

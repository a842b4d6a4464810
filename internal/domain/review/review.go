// Package review owns the review item state machine: PENDING items are
// resolved exactly once by approve, reject or merge.
package review

import (
	"fmt"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// Action is a resolution applied to a review item.
type Action string

// Resolution actions.
const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionMerge   Action = "merge"
)

// Target returns the terminal status an action moves an item to.
func (a Action) Target() model.ReviewStatus {
	switch a {
	case ActionApprove:
		return model.StatusApproved
	case ActionReject:
		return model.StatusRejected
	case ActionMerge:
		return model.StatusMerged
	}
	return ""
}

// Check reports whether action may be applied to item. Terminal items yield
// a *model.StaleResolutionError; merges need a mergeable issue and a
// suggested match.
func Check(item *model.ReviewItem, action Action) error {
	if item.Status != model.StatusPending {
		return &model.StaleResolutionError{ItemID: item.ID, Status: item.Status}
	}
	switch action {
	case ActionApprove, ActionReject:
		return nil
	case ActionMerge:
		if !item.IssueType.Mergeable() || item.SuggestedMatchID == "" {
			return fmt.Errorf("%w: %s item %s has no record to merge into", model.ErrInvalidTransition, item.IssueType, item.ID)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", model.ErrInvalidTransition, action)
}

// MergeRecords combines existing with candidate field by field. The existing
// record counts as fully confident, so a candidate value only fills fields the
// existing record left empty. Field confidences survive only when the merged
// record keeps an OCR source. The result has no id yet.
func MergeRecords(existing, candidate model.AttendeeRecord) model.AttendeeRecord { //nolint:gocritic // pure function over values
	merged := existing.Clone()
	merged.ID = ""
	merged.SupersededBy = ""
	merged.SupersededAt = nil

	conf := make(map[model.Field]float64)
	for _, f := range model.Fields {
		if existing.Get(f) == "" && candidate.Get(f) != "" {
			merged.Set(f, candidate.Get(f))
			if c, ok := candidate.FieldConfidence[f]; ok {
				conf[f] = c
			}
			continue
		}
		if c, ok := existing.FieldConfidence[f]; ok {
			conf[f] = c
		}
	}
	merged.FieldConfidence = nil
	if len(conf) > 0 && merged.Source == model.SourceOCR {
		merged.FieldConfidence = conf
	}
	merged.MergedFrom = append(append([]string(nil), existing.MergedFrom...), existing.ID)
	return merged
}

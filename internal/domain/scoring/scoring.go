// Package scoring classifies extraction confidence into tiers and derives the
// overall clean/low verdict for a candidate.
package scoring

import (
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// Tier thresholds. A score equal to a threshold belongs to the higher tier.
const (
	HighThreshold   = 70.0
	MediumThreshold = 45.0
)

// Tier is a confidence bucket.
type Tier string

// Confidence tiers.
const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Overall is the evaluator's verdict for a whole candidate.
type Overall string

// Verdicts.
const (
	Clean Overall = "clean"
	Low   Overall = "low"
)

// TierOf maps a 0-100 score onto its tier.
func TierOf(score float64) Tier {
	switch {
	case score >= HighThreshold:
		return TierHigh
	case score >= MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Verdict is the evaluation of one candidate.
type Verdict struct {
	Overall      Overall
	Tiers        map[model.Field]Tier
	LowFields    []model.Field
	MediumFields []model.Field
}

// Flagged reports whether the candidate must go to review as LOW_CONFIDENCE.
func (v Verdict) Flagged() bool { return v.Overall == Low }

// Evaluator scores candidates.
type Evaluator interface {
	Evaluate(rec *model.AttendeeRecord) Verdict
}

// TierEvaluator implements Evaluator with the fixed tier thresholds. It is
// stateless and safe for concurrent use.
type TierEvaluator struct{}

// NewEvaluator returns the default evaluator.
func NewEvaluator() *TierEvaluator { return &TierEvaluator{} }

// Evaluate tiers each field of an OCR candidate. Other sources carry no
// confidence and are always clean.
func (TierEvaluator) Evaluate(rec *model.AttendeeRecord) Verdict {
	v := Verdict{Overall: Clean}
	if rec.Source != model.SourceOCR || len(rec.FieldConfidence) == 0 {
		return v
	}
	v.Tiers = make(map[model.Field]Tier, len(model.Fields))
	for _, f := range model.Fields {
		t := TierOf(rec.Confidence(f))
		v.Tiers[f] = t
		switch t {
		case TierLow:
			v.LowFields = append(v.LowFields, f)
		case TierMedium:
			v.MediumFields = append(v.MediumFields, f)
		case TierHigh:
		}
	}
	if len(v.LowFields) > 0 {
		v.Overall = Low
	}
	return v
}

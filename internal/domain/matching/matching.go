// Package matching detects whether a candidate duplicates a committed record.
package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
)

// Result is the matcher's classification of one candidate.
type Result struct {
	Verdict model.MatchVerdict
	// Match is the selected existing record for DUPLICATE and UNCERTAIN_MATCH.
	Match *model.AttendeeRecord
	// Candidates counts the active records that shared the matched key.
	Candidates int
}

// Ambiguous reports whether more than one record shared the key. Callers log
// this as a data-integrity warning.
func (r Result) Ambiguous() bool { return r.Candidates > 1 }

// Match classifies a normalized candidate against lookup. Email is the primary
// key; a phone match alone is only an uncertain match. When several records
// share a key, the most recently committed one is selected.
func Match(ctx context.Context, lookup ports.Lookup, cand *model.AttendeeRecord) (Result, error) {
	if cand.Email != "" {
		recs, err := lookup.FindByEmail(ctx, cand.Email)
		if err != nil {
			return Result{}, fmt.Errorf("match by email: %w", err)
		}
		if r, ok := pick(recs, model.MatchDuplicate); ok {
			return r, nil
		}
	}
	if cand.PhoneNumber != "" {
		recs, err := lookup.FindByPhone(ctx, cand.PhoneNumber)
		if err != nil {
			return Result{}, fmt.Errorf("match by phone: %w", err)
		}
		if r, ok := pick(recs, model.MatchUncertain); ok {
			return r, nil
		}
	}
	return Result{Verdict: model.MatchNone}, nil
}

func pick(recs []model.AttendeeRecord, verdict model.MatchVerdict) (Result, bool) {
	var (
		best  *model.AttendeeRecord
		count int
	)
	for i := range recs {
		r := &recs[i]
		if !r.Active() {
			continue
		}
		count++
		if best == nil || newer(r, best) {
			best = r
		}
	}
	if best == nil {
		return Result{}, false
	}
	m := best.Clone()
	return Result{Verdict: verdict, Match: &m, Candidates: count}, true
}

// newer orders by commit instant, then by id so the choice is deterministic.
func newer(a, b *model.AttendeeRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// LockKeys returns the natural-key locks a commit of rec must hold, sorted so
// concurrent transactions acquire them in the same order.
func LockKeys(rec *model.AttendeeRecord) []string {
	keys := make([]string, 0, 2)
	if rec.Email != "" {
		keys = append(keys, "email:"+rec.Email)
	}
	if rec.PhoneNumber != "" {
		keys = append(keys, "phone:"+rec.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

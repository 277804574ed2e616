// Package antiflap debounces observed values. A new value becomes the stable
// truth only after it has been seen requireConsecutive times in a row; any
// return to the current stable value wipes the accumulating candidate. This
// keeps A/B-tested and flapping pages from firing alerts on every wobble.
package antiflap

import (
	"time"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// Result is what one processing step reports back to the caller.
type Result struct {
	// ConfirmedChange is true only on the step that promotes a candidate.
	ConfirmedChange bool
	// PreviousStable and NewStable are populated on promotion only.
	PreviousStable *schemas.NormalizedValue
	NewStable      *schemas.NormalizedValue
	// CandidateCount is the in-progress count after this step; zero whenever
	// no candidate is accumulating.
	CandidateCount int
}

// Process advances the state machine by one observation. It is a pure
// function: state is read as a snapshot and a fresh state is returned for the
// caller to persist. Serializing calls per rule is the caller's job.
//
// requireConsecutive values below one confirm immediately; zero and one are
// equivalent.
func Process(current *schemas.NormalizedValue, state *schemas.RuleState, requireConsecutive int) (Result, schemas.RuleState) {
	if requireConsecutive < 1 {
		requireConsecutive = 1
	}

	next := schemas.RuleState{UpdatedAt: time.Now().UTC()}
	if state != nil {
		next.RuleID = state.RuleID
	}

	// A nil observation cannot advance the machine; the caller skips failed
	// extractions before ever reaching this point.
	if current == nil {
		if state != nil {
			next.LastStable = state.LastStable.Clone()
			next.Candidate = state.Candidate.Clone()
			next.CandidateCount = state.CandidateCount
		}
		return Result{CandidateCount: next.CandidateCount}, next
	}

	// First observation ever: the value is stable by definition.
	if state == nil || state.LastStable == nil {
		next.LastStable = current.Clone()
		return Result{}, next
	}

	next.LastStable = state.LastStable.Clone()

	// Return to the known-stable value forgets any in-progress candidate,
	// however far along it was.
	if Equal(current, state.LastStable) {
		return Result{}, next
	}

	// The candidate showed up again.
	if state.Candidate != nil && Equal(current, state.Candidate) {
		count := state.CandidateCount + 1
		if count >= requireConsecutive {
			next.LastStable = current.Clone()
			return Result{
				ConfirmedChange: true,
				PreviousStable:  state.LastStable.Clone(),
				NewStable:       current.Clone(),
			}, next
		}
		next.Candidate = current.Clone()
		next.CandidateCount = count
		return Result{CandidateCount: count}, next
	}

	// A value differing from both the stable value and the candidate.
	if requireConsecutive <= 1 {
		next.LastStable = current.Clone()
		return Result{
			ConfirmedChange: true,
			PreviousStable:  state.LastStable.Clone(),
			NewStable:       current.Clone(),
		}, next
	}

	// Start over; no partial credit carries between distinct candidates.
	next.Candidate = current.Clone()
	next.CandidateCount = 1
	return Result{CandidateCount: 1}, next
}

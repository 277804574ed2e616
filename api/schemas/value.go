package schemas

import (
	"fmt"
	"time"
)

// -- Normalized Value Schemas --

// ValueKind discriminates the active variant of a NormalizedValue. It is set
// once at normalization time and never inferred from shape afterwards.
type ValueKind string

const (
	ValueKindPrice        ValueKind = "price"
	ValueKindAvailability ValueKind = "availability"
	ValueKindText         ValueKind = "text"
	ValueKindNumber       ValueKind = "number"
	// ValueKindGeneric marks values produced before typed normalization
	// existed. Equality falls back to shape-based dispatch for these.
	ValueKindGeneric ValueKind = "generic"
)

// AvailabilityStatus is the closed set of stock states a page can resolve to.
type AvailabilityStatus string

const (
	AvailabilityInStock      AvailabilityStatus = "in_stock"
	AvailabilityOutOfStock   AvailabilityStatus = "out_of_stock"
	AvailabilityLeadTime     AvailabilityStatus = "lead_time"
	AvailabilityDiscontinued AvailabilityStatus = "discontinued"
	AvailabilityUnknown      AvailabilityStatus = "unknown"
)

// PriceValue is a monetary observation. The float fields mirror what the page
// displayed; the cents fields are the exact integer representation used for
// comparison, populated whenever the source amount had at most two decimals.
type PriceValue struct {
	Value     float64  `json:"value"`
	Currency  string   `json:"currency,omitempty"`
	ValueLow  *float64 `json:"valueLow,omitempty"`
	ValueHigh *float64 `json:"valueHigh,omitempty"`
	// Country distinguishes regional price variants that share a currency.
	Country string `json:"country,omitempty"`

	ValueCents     *int64 `json:"valueCents,omitempty"`
	ValueLowCents  *int64 `json:"valueLowCents,omitempty"`
	ValueHighCents *int64 `json:"valueHighCents,omitempty"`
}

// AvailabilityValue is a stock-state observation.
type AvailabilityValue struct {
	Status AvailabilityStatus `json:"status"`
	// LeadTimeDays is nil unless a mapping rule extracted a delay.
	LeadTimeDays *int `json:"leadTimeDays,omitempty"`
}

// TextValue is a content observation. Only the hash participates in equality;
// the snippet exists for humans and diffing.
type TextValue struct {
	Hash    string `json:"hash"`
	Snippet string `json:"snippet"`
}

// NormalizedValue is the tagged union produced by the normalizer. Exactly one
// variant matching Kind is populated.
type NormalizedValue struct {
	Kind         ValueKind          `json:"kind"`
	Price        *PriceValue        `json:"price,omitempty"`
	Availability *AvailabilityValue `json:"availability,omitempty"`
	Text         *TextValue         `json:"text,omitempty"`
	Number       *float64           `json:"number,omitempty"`
	Generic      interface{}        `json:"generic,omitempty"`
}

// Clone deep-copies the value so state transitions never alias a caller's
// pointers. Generic payloads are shared, not copied; nothing in this core
// mutates them.
func (v *NormalizedValue) Clone() *NormalizedValue {
	if v == nil {
		return nil
	}
	out := *v
	if v.Price != nil {
		p := *v.Price
		p.ValueLow = cloneFloat(v.Price.ValueLow)
		p.ValueHigh = cloneFloat(v.Price.ValueHigh)
		p.ValueCents = cloneInt64(v.Price.ValueCents)
		p.ValueLowCents = cloneInt64(v.Price.ValueLowCents)
		p.ValueHighCents = cloneInt64(v.Price.ValueHighCents)
		out.Price = &p
	}
	if v.Availability != nil {
		a := *v.Availability
		if v.Availability.LeadTimeDays != nil {
			d := *v.Availability.LeadTimeDays
			a.LeadTimeDays = &d
		}
		out.Availability = &a
	}
	if v.Text != nil {
		t := *v.Text
		out.Text = &t
	}
	if v.Number != nil {
		n := *v.Number
		out.Number = &n
	}
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// -- Rule State Schemas --

// RuleState is the only data that crosses observation cycles. It is owned and
// mutated exclusively by the anti-flap state machine; the caller persists it.
type RuleState struct {
	RuleID     string           `json:"ruleId"`
	LastStable *NormalizedValue `json:"lastStable"`
	// Candidate is a value seen but not yet confirmed. Non-nil exactly when
	// CandidateCount > 0.
	Candidate      *NormalizedValue `json:"candidate,omitempty"`
	CandidateCount int              `json:"candidateCount"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Clone deep-copies the state.
func (s *RuleState) Clone() *RuleState {
	if s == nil {
		return nil
	}
	out := *s
	out.LastStable = s.LastStable.Clone()
	out.Candidate = s.Candidate.Clone()
	return &out
}

// Validate checks the candidate/count invariant. A violated state indicates
// corruption in the external store, not a recoverable runtime condition.
func (s *RuleState) Validate() error {
	if s == nil {
		return nil
	}
	if (s.Candidate == nil) != (s.CandidateCount == 0) {
		return fmt.Errorf("rule state %q: candidate must be non-nil exactly when candidateCount > 0 (candidate=%v, count=%d)",
			s.RuleID, s.Candidate != nil, s.CandidateCount)
	}
	if s.CandidateCount < 0 {
		return fmt.Errorf("rule state %q: negative candidateCount %d", s.RuleID, s.CandidateCount)
	}
	return nil
}

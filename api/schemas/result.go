package schemas

import "time"

// -- Extraction Result Schemas --

// ExtractionResult is the selector engine's output contract. The schema
// resolver shares the success/error register but returns SchemaResult.
type ExtractionResult struct {
	Success      bool   `json:"success"`
	Value        string `json:"value,omitempty"`
	SelectorUsed string `json:"selectorUsed,omitempty"`
	FallbackUsed bool   `json:"fallbackUsed"`
	Error        string `json:"error,omitempty"`
}

// SchemaFingerprint captures the structural shape of the winning entity for
// drift comparison. Two fingerprints are comparable regardless of when they
// were taken; Timestamp is informational only.
type SchemaFingerprint struct {
	SchemaTypes      []string  `json:"schemaTypes"`
	ShapeHash        string    `json:"shapeHash"`
	JSONLDBlockCount int       `json:"jsonLdBlockCount"`
	HasOffers        bool      `json:"hasOffers"`
	HasMeta          bool      `json:"hasMeta"`
	Timestamp        time.Time `json:"timestamp"`
}

// SchemaMeta carries extraction context alongside the raw value.
type SchemaMeta struct {
	Currency string `json:"currency,omitempty"`
	// CurrencyConflict is set when offers disagree on currency; the value is
	// still emitted.
	CurrencyConflict bool               `json:"currencyConflict,omitempty"`
	ValueLow         *float64           `json:"valueLow,omitempty"`
	ValueHigh        *float64           `json:"valueHigh,omitempty"`
	Source           SchemaSource       `json:"source,omitempty"`
	EntityType       string             `json:"entityType,omitempty"`
	Fingerprint      *SchemaFingerprint `json:"fingerprint,omitempty"`
}

// SchemaResult is the schema entity resolver's output contract.
type SchemaResult struct {
	Success  bool        `json:"success"`
	RawValue string      `json:"rawValue,omitempty"`
	Meta     *SchemaMeta `json:"meta,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// -- Change Detection Schemas --

// ChangeKind classifies a confirmed change.
type ChangeKind string

const (
	ChangeIncreased    ChangeKind = "increased"
	ChangeDecreased    ChangeKind = "decreased"
	ChangeStatusChange ChangeKind = "status_change"
	ChangeTextDiff     ChangeKind = "text_diff"
)

// TextDiffDetails exposes the word-level diff structurally for programmatic
// consumers. Examples are capped at three phrases per side.
type TextDiffDetails struct {
	AddedCount      int      `json:"addedCount"`
	RemovedCount    int      `json:"removedCount"`
	AddedExamples   []string `json:"addedExamples,omitempty"`
	RemovedExamples []string `json:"removedExamples,omitempty"`
}

// ChangeDetectionResult describes what changed between two confirmed values.
type ChangeDetectionResult struct {
	Changed       bool             `json:"changed"`
	ChangeKind    ChangeKind       `json:"changeKind,omitempty"`
	DiffSummary   string           `json:"diffSummary,omitempty"`
	PercentChange *float64         `json:"percentChange,omitempty"`
	DiffDetails   *TextDiffDetails `json:"diffDetails,omitempty"`
}

// -- Drift Schemas --

// DriftResult is the advisory output of the schema drift detector. It never
// blocks extraction; a selector-healing process consumes it.
type DriftResult struct {
	Drifted bool   `json:"drifted"`
	Reason  string `json:"reason,omitempty"`
}

// -- Observation Schemas --

// ObservationOutcome is everything one observation cycle produced, handed to
// the external alert-policy and persistence layers.
type ObservationOutcome struct {
	ID         string    `json:"id"`
	RuleID     string    `json:"ruleId"`
	ObservedAt time.Time `json:"observedAt"`

	Fetch      *FetchResult      `json:"fetch,omitempty"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
	Schema     *SchemaResult     `json:"schema,omitempty"`

	Value *NormalizedValue `json:"value,omitempty"`
	State *RuleState       `json:"state,omitempty"`

	ConfirmedChange bool                   `json:"confirmedChange"`
	CandidateCount  int                    `json:"candidateCount"`
	Change          *ChangeDetectionResult `json:"change,omitempty"`
	Drift           *DriftResult           `json:"drift,omitempty"`

	// Error is set when the cycle ended after extraction but before a value
	// existed (failed normalization). Acquisition and selector failures are
	// carried inside Fetch, Extraction, and Schema instead.
	Error string `json:"error,omitempty"`
}

package schemas

import (
	"fmt"
	"strings"
)

// -- Rule Schemas --

// RuleType selects the normalizer and change detector for a rule.
type RuleType string

const (
	RuleTypePrice        RuleType = "price"
	RuleTypeAvailability RuleType = "availability"
	RuleTypeText         RuleType = "text"
	RuleTypeNumber       RuleType = "number"
)

// ExtractionMethod is the selector strategy family.
type ExtractionMethod string

const (
	MethodCSS   ExtractionMethod = "css"
	MethodXPath ExtractionMethod = "xpath"
	MethodRegex ExtractionMethod = "regex"
)

// Attribute modes for element extraction. Any other value of the form
// "attr:<name>" extracts the named attribute.
const (
	AttributeText  = "text"
	AttributeHTML  = "html"
	AttributeValue = "value"
	AttrPrefix     = "attr:"
)

// PostprocessOpKind identifies a text transform in the postprocessing pipeline.
type PostprocessOpKind string

const (
	OpTrim               PostprocessOpKind = "trim"
	OpLowercase          PostprocessOpKind = "lowercase"
	OpUppercase          PostprocessOpKind = "uppercase"
	OpCollapseWhitespace PostprocessOpKind = "collapse_whitespace"
	OpReplace            PostprocessOpKind = "replace"
	OpRegexExtract       PostprocessOpKind = "regex_extract"
)

// PostprocessOp is one step of the pipeline. From/To apply to replace,
// Pattern/Group to regex_extract.
type PostprocessOp struct {
	Op      PostprocessOpKind `json:"op"`
	From    string            `json:"from,omitempty"`
	To      string            `json:"to,omitempty"`
	Pattern string            `json:"pattern,omitempty"`
	Group   int               `json:"group,omitempty"`
}

// FallbackSelector is an alternate selector tried only after the primary
// yields no usable value. Order in the list is significant.
type FallbackSelector struct {
	Method   ExtractionMethod `json:"method"`
	Selector string           `json:"selector"`
}

// ExtractionConfig drives the selector extraction engine.
type ExtractionConfig struct {
	Method   ExtractionMethod `json:"method"`
	Selector string           `json:"selector"`
	// Attribute is text, html, value, or "attr:<name>". Empty means text.
	Attribute         string             `json:"attribute,omitempty"`
	Postprocess       []PostprocessOp    `json:"postprocess,omitempty"`
	FallbackSelectors []FallbackSelector `json:"fallbackSelectors,omitempty"`
	// Context optionally scopes the selector under a single ancestor element,
	// resolved with the same method family first.
	Context string `json:"context,omitempty"`
}

// -- Schema Query Schemas --

// SchemaKind is what the structured-data resolver should extract.
type SchemaKind string

const (
	SchemaKindPrice        SchemaKind = "price"
	SchemaKindAvailability SchemaKind = "availability"
)

// SchemaPrefer picks a bound when offers expose a price range.
type SchemaPrefer string

const (
	PreferPrice SchemaPrefer = "price"
	PreferLow   SchemaPrefer = "low"
	PreferHigh  SchemaPrefer = "high"
)

// SchemaSource restricts which structured-data path may be used.
type SchemaSource string

const (
	SourceAuto   SchemaSource = "auto"
	SourceJSONLD SchemaSource = "jsonld"
	SourceMeta   SchemaSource = "meta"
)

// SchemaQuery drives the schema entity resolver.
type SchemaQuery struct {
	Kind   SchemaKind   `json:"kind"`
	Prefer SchemaPrefer `json:"prefer,omitempty"`
	Source SchemaSource `json:"source,omitempty"`
}

// -- Availability Mapping Schemas --

// AvailabilityRule maps raw page text onto a status. Pattern is treated as a
// regex when it contains a regex metacharacter class, otherwise as a literal
// substring matched on word boundaries; IsRegex overrides the heuristic when
// set.
type AvailabilityRule struct {
	Pattern string             `json:"pattern"`
	Status  AvailabilityStatus `json:"status"`
	// ExtractLeadTime pulls the first integer inside the matched span into
	// leadTimeDays.
	ExtractLeadTime bool  `json:"extractLeadTime,omitempty"`
	IsRegex         *bool `json:"isRegex,omitempty"`
}

// -- Rule --

// Rule is the full configuration for one watched value. Exactly one of
// Extraction or Schema must be set.
type Rule struct {
	ID   string   `json:"id"`
	URL  string   `json:"url"`
	Type RuleType `json:"type"`

	Extraction *ExtractionConfig `json:"extraction,omitempty"`
	Schema     *SchemaQuery      `json:"schema,omitempty"`

	AvailabilityRules []AvailabilityRule `json:"availabilityRules,omitempty"`
	DefaultStatus     AvailabilityStatus `json:"defaultStatus,omitempty"`

	// RequireConsecutive is how many consecutive observations of a new value
	// confirm it. 0 and 1 both mean confirm immediately.
	RequireConsecutive int `json:"requireConsecutive,omitempty"`

	Fetch FetchOptions `json:"fetch,omitempty"`
}

// Validate catches unconstructable rules before an observation cycle starts.
// Runtime conditions (missing selectors, absent values) are never validation
// errors.
func (r *Rule) Validate() error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule has no id")
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("rule %q: url is required", r.ID)
	}
	switch r.Type {
	case RuleTypePrice, RuleTypeAvailability, RuleTypeText, RuleTypeNumber:
	default:
		return fmt.Errorf("rule %q: unknown type %q", r.ID, r.Type)
	}
	if (r.Extraction == nil) == (r.Schema == nil) {
		return fmt.Errorf("rule %q: exactly one of extraction or schema must be set", r.ID)
	}
	if r.Extraction != nil {
		switch r.Extraction.Method {
		case MethodCSS, MethodXPath, MethodRegex:
		default:
			return fmt.Errorf("rule %q: unknown extraction method %q", r.ID, r.Extraction.Method)
		}
		if strings.TrimSpace(r.Extraction.Selector) == "" {
			return fmt.Errorf("rule %q: extraction selector is required", r.ID)
		}
	}
	if r.Schema != nil {
		switch r.Schema.Kind {
		case SchemaKindPrice, SchemaKindAvailability:
		default:
			return fmt.Errorf("rule %q: unknown schema kind %q", r.ID, r.Schema.Kind)
		}
	}
	if r.RequireConsecutive < 0 {
		return fmt.Errorf("rule %q: requireConsecutive must not be negative", r.ID)
	}
	return nil
}

// Package change classifies the difference between two confirmed values. It
// runs only after the anti-flap machine promotes a candidate, so both sides
// are trusted stable observations. Detectors never perform I/O and never
// fail; an incomparable pair reports no change.
package change

import (
	"fmt"
	"strconv"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// Detect dispatches on the rule type. Each detector is independently
// null-safe: a missing side on either end reports no change rather than
// guessing.
func Detect(previous, current *schemas.NormalizedValue, ruleType schemas.RuleType) schemas.ChangeDetectionResult {
	switch ruleType {
	case schemas.RuleTypePrice:
		return detectPrice(previous, current)
	case schemas.RuleTypeAvailability:
		return detectAvailability(previous, current)
	case schemas.RuleTypeText:
		return detectText(previous, current)
	case schemas.RuleTypeNumber:
		return detectNumber(previous, current)
	default:
		return schemas.ChangeDetectionResult{}
	}
}

func detectPrice(previous, current *schemas.NormalizedValue) schemas.ChangeDetectionResult {
	if previous == nil || previous.Price == nil || current == nil || current.Price == nil {
		return schemas.ChangeDetectionResult{}
	}
	unit := current.Price.Currency
	if unit == "" {
		unit = previous.Price.Currency
	}
	return numericChange(previous.Price.Value, current.Price.Value, unit)
}

func detectNumber(previous, current *schemas.NormalizedValue) schemas.ChangeDetectionResult {
	if previous == nil || previous.Number == nil || current == nil || current.Number == nil {
		return schemas.ChangeDetectionResult{}
	}
	return numericChange(*previous.Number, *current.Number, "")
}

// numericChange renders "prev → curr [unit] (±pct%)". A zero previous value
// makes the relative change undefined; it is reported as 100.
func numericChange(prev, curr float64, unit string) schemas.ChangeDetectionResult {
	if prev == curr {
		return schemas.ChangeDetectionResult{}
	}
	pct := 100.0
	if prev != 0 {
		pct = (curr - prev) / prev * 100
	}
	kind := schemas.ChangeIncreased
	if curr < prev {
		kind = schemas.ChangeDecreased
	}

	summary := formatNumber(prev) + " → " + formatNumber(curr)
	if unit != "" {
		summary += " " + unit
	}
	summary += fmt.Sprintf(" (%+.1f%%)", pct)

	return schemas.ChangeDetectionResult{
		Changed:       true,
		ChangeKind:    kind,
		DiffSummary:   summary,
		PercentChange: &pct,
	}
}

func detectAvailability(previous, current *schemas.NormalizedValue) schemas.ChangeDetectionResult {
	if previous == nil || previous.Availability == nil || current == nil || current.Availability == nil {
		return schemas.ChangeDetectionResult{}
	}
	prev, curr := previous.Availability, current.Availability

	leadEqual := intPtrEqual(prev.LeadTimeDays, curr.LeadTimeDays)
	if prev.Status == curr.Status && leadEqual {
		return schemas.ChangeDetectionResult{}
	}

	summary := string(prev.Status) + " → " + string(curr.Status)
	if !leadEqual {
		summary += fmt.Sprintf(" (lead time %s → %s)", leadTimeLabel(prev.LeadTimeDays), leadTimeLabel(curr.LeadTimeDays))
	}

	return schemas.ChangeDetectionResult{
		Changed:     true,
		ChangeKind:  schemas.ChangeStatusChange,
		DiffSummary: summary,
	}
}

func detectText(previous, current *schemas.NormalizedValue) schemas.ChangeDetectionResult {
	if previous == nil || previous.Text == nil || current == nil || current.Text == nil {
		return schemas.ChangeDetectionResult{}
	}
	if previous.Text.Hash == current.Text.Hash {
		return schemas.ChangeDetectionResult{}
	}

	removed, added := diffWords(previous.Text.Snippet, current.Text.Snippet)
	removedCount := phraseWordCount(removed)
	addedCount := phraseWordCount(added)

	return schemas.ChangeDetectionResult{
		Changed:     true,
		ChangeKind:  schemas.ChangeTextDiff,
		DiffSummary: textSummary(removed, added, removedCount, addedCount),
		DiffDetails: &schemas.TextDiffDetails{
			AddedCount:      addedCount,
			RemovedCount:    removedCount,
			AddedExamples:   capExamples(added),
			RemovedExamples: capExamples(removed),
		},
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func leadTimeLabel(d *int) string {
	if d == nil {
		return "none"
	}
	if *d == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", *d)
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

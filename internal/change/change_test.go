package change_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/change"
)

func priceNV(value float64, currency string) *schemas.NormalizedValue {
	return &schemas.NormalizedValue{
		Kind:  schemas.ValueKindPrice,
		Price: &schemas.PriceValue{Value: value, Currency: currency},
	}
}

func numberNV(v float64) *schemas.NormalizedValue {
	return &schemas.NormalizedValue{Kind: schemas.ValueKindNumber, Number: &v}
}

func availNV(status schemas.AvailabilityStatus, lead *int) *schemas.NormalizedValue {
	return &schemas.NormalizedValue{
		Kind:         schemas.ValueKindAvailability,
		Availability: &schemas.AvailabilityValue{Status: status, LeadTimeDays: lead},
	}
}

func textNV(hash, snippet string) *schemas.NormalizedValue {
	return &schemas.NormalizedValue{
		Kind: schemas.ValueKindText,
		Text: &schemas.TextValue{Hash: hash, Snippet: snippet},
	}
}

func leadDays(d int) *int { return &d }

func TestDetect_PriceDecrease(t *testing.T) {
	result := change.Detect(priceNV(100, "USD"), priceNV(75, "USD"), schemas.RuleTypePrice)

	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeDecreased, result.ChangeKind)
	require.NotNil(t, result.PercentChange)
	assert.InDelta(t, -25.0, *result.PercentChange, 0.0001)
	assert.Equal(t, "100 → 75 USD (-25.0%)", result.DiffSummary)
}

func TestDetect_PriceIncrease(t *testing.T) {
	result := change.Detect(priceNV(19.99, "EUR"), priceNV(24.99, "EUR"), schemas.RuleTypePrice)

	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeIncreased, result.ChangeKind)
	require.NotNil(t, result.PercentChange)
	assert.InDelta(t, 25.0125, *result.PercentChange, 0.001)
	assert.Equal(t, "19.99 → 24.99 EUR (+25.0%)", result.DiffSummary)
}

func TestDetect_PriceFromZero(t *testing.T) {
	result := change.Detect(priceNV(0, ""), priceNV(12.5, ""), schemas.RuleTypePrice)

	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeIncreased, result.ChangeKind)
	require.NotNil(t, result.PercentChange)
	assert.InDelta(t, 100.0, *result.PercentChange, 0.0001)
	assert.Equal(t, "0 → 12.5 (+100.0%)", result.DiffSummary)
}

func TestDetect_PriceEqualValueIsNoChange(t *testing.T) {
	result := change.Detect(priceNV(10, "EUR"), priceNV(10, "EUR"), schemas.RuleTypePrice)
	assert.False(t, result.Changed)
	assert.Empty(t, result.ChangeKind)
	assert.Nil(t, result.PercentChange)

	// Only the numeric value participates; a currency swap alone does not
	// classify as a price movement.
	result = change.Detect(priceNV(10, "EUR"), priceNV(10, "USD"), schemas.RuleTypePrice)
	assert.False(t, result.Changed)
}

func TestDetect_PriceUnitFallsBackToPrevious(t *testing.T) {
	result := change.Detect(priceNV(8, "GBP"), priceNV(9, ""), schemas.RuleTypePrice)
	assert.Equal(t, "8 → 9 GBP (+12.5%)", result.DiffSummary)
}

func TestDetect_Number(t *testing.T) {
	result := change.Detect(numberNV(4.8), numberNV(4.9), schemas.RuleTypeNumber)
	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeIncreased, result.ChangeKind)
	require.NotNil(t, result.PercentChange)
	assert.InDelta(t, 2.083, *result.PercentChange, 0.01)
	assert.Equal(t, "4.8 → 4.9 (+2.1%)", result.DiffSummary)

	result = change.Detect(numberNV(87), numberNV(42), schemas.RuleTypeNumber)
	assert.Equal(t, schemas.ChangeDecreased, result.ChangeKind)
	assert.Equal(t, "87 → 42 (-51.7%)", result.DiffSummary)

	result = change.Detect(numberNV(42), numberNV(42), schemas.RuleTypeNumber)
	assert.False(t, result.Changed)
}

func TestDetect_AvailabilityStatusChange(t *testing.T) {
	result := change.Detect(
		availNV(schemas.AvailabilityInStock, nil),
		availNV(schemas.AvailabilityOutOfStock, nil),
		schemas.RuleTypeAvailability,
	)

	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeStatusChange, result.ChangeKind)
	assert.Contains(t, result.DiffSummary, "in_stock")
	assert.Contains(t, result.DiffSummary, "out_of_stock")
	assert.Equal(t, "in_stock → out_of_stock", result.DiffSummary)
	assert.Nil(t, result.PercentChange)
}

func TestDetect_AvailabilityLeadTimeDelta(t *testing.T) {
	t.Run("Lead-only change still reports the transition", func(t *testing.T) {
		result := change.Detect(
			availNV(schemas.AvailabilityLeadTime, leadDays(5)),
			availNV(schemas.AvailabilityLeadTime, leadDays(7)),
			schemas.RuleTypeAvailability,
		)
		assert.True(t, result.Changed)
		assert.Equal(t, schemas.ChangeStatusChange, result.ChangeKind)
		assert.Equal(t, "lead_time → lead_time (lead time 5 days → 7 days)", result.DiffSummary)
	})

	t.Run("Lead time appearing alongside a status change", func(t *testing.T) {
		result := change.Detect(
			availNV(schemas.AvailabilityInStock, nil),
			availNV(schemas.AvailabilityLeadTime, leadDays(10)),
			schemas.RuleTypeAvailability,
		)
		assert.Equal(t, "in_stock → lead_time (lead time none → 10 days)", result.DiffSummary)
	})

	t.Run("Singular day", func(t *testing.T) {
		result := change.Detect(
			availNV(schemas.AvailabilityLeadTime, leadDays(1)),
			availNV(schemas.AvailabilityLeadTime, leadDays(3)),
			schemas.RuleTypeAvailability,
		)
		assert.Equal(t, "lead_time → lead_time (lead time 1 day → 3 days)", result.DiffSummary)
	})

	t.Run("Unchanged lead time is not mentioned", func(t *testing.T) {
		result := change.Detect(
			availNV(schemas.AvailabilityInStock, leadDays(2)),
			availNV(schemas.AvailabilityOutOfStock, leadDays(2)),
			schemas.RuleTypeAvailability,
		)
		assert.Equal(t, "in_stock → out_of_stock", result.DiffSummary)
	})
}

func TestDetect_AvailabilityEqualIsNoChange(t *testing.T) {
	result := change.Detect(
		availNV(schemas.AvailabilityInStock, leadDays(4)),
		availNV(schemas.AvailabilityInStock, leadDays(4)),
		schemas.RuleTypeAvailability,
	)
	assert.False(t, result.Changed)
}

func TestDetect_TextEqualHashesNoChange(t *testing.T) {
	result := change.Detect(textNV("abc", "one"), textNV("abc", "one"), schemas.RuleTypeText)
	assert.False(t, result.Changed)
	assert.Nil(t, result.DiffDetails)
}

func TestDetect_TextSmallReplacementQuotesPhrases(t *testing.T) {
	result := change.Detect(
		textNV("h1", "Price includes free shipping"),
		textNV("h2", "Price includes paid shipping"),
		schemas.RuleTypeText,
	)

	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeTextDiff, result.ChangeKind)
	assert.Equal(t, `"free" → "paid"`, result.DiffSummary)

	require.NotNil(t, result.DiffDetails)
	assert.Equal(t, 1, result.DiffDetails.RemovedCount)
	assert.Equal(t, 1, result.DiffDetails.AddedCount)
	assert.Equal(t, []string{"free"}, result.DiffDetails.RemovedExamples)
	assert.Equal(t, []string{"paid"}, result.DiffDetails.AddedExamples)
}

func TestDetect_TextPureInsertionAndRemoval(t *testing.T) {
	result := change.Detect(
		textNV("h1", "Ships worldwide"),
		textNV("h2", "Ships worldwide from Berlin"),
		schemas.RuleTypeText,
	)
	assert.Equal(t, `added "from Berlin"`, result.DiffSummary)
	require.NotNil(t, result.DiffDetails)
	assert.Equal(t, 2, result.DiffDetails.AddedCount)
	assert.Equal(t, 0, result.DiffDetails.RemovedCount)
	assert.Empty(t, result.DiffDetails.RemovedExamples)

	result = change.Detect(
		textNV("h1", "Limited offer ends soon"),
		textNV("h2", "Limited offer"),
		schemas.RuleTypeText,
	)
	assert.Equal(t, `removed "ends soon"`, result.DiffSummary)
	require.NotNil(t, result.DiffDetails)
	assert.Equal(t, 2, result.DiffDetails.RemovedCount)
	assert.Equal(t, 0, result.DiffDetails.AddedCount)
}

func TestDetect_TextLargeChangeReportsCounts(t *testing.T) {
	result := change.Detect(
		textNV("h1", "The quick brown fox jumps over the lazy dog"),
		textNV("h2", "The slow green turtle crawls under the lazy dog"),
		schemas.RuleTypeText,
	)

	assert.True(t, result.Changed)
	assert.Equal(t, `5 words removed, 5 words added (e.g. "quick brown fox jumps over")`, result.DiffSummary)

	require.NotNil(t, result.DiffDetails)
	assert.Equal(t, 5, result.DiffDetails.RemovedCount)
	assert.Equal(t, 5, result.DiffDetails.AddedCount)
	assert.Equal(t, []string{"quick brown fox jumps over"}, result.DiffDetails.RemovedExamples)
	assert.Equal(t, []string{"slow green turtle crawls under"}, result.DiffDetails.AddedExamples)
}

func TestDetect_TextSingularWordLabel(t *testing.T) {
	result := change.Detect(
		textNV("h1", "Standard delivery included here"),
		textNV("h2", "Standard delivery now costs twenty euros extra here"),
		schemas.RuleTypeText,
	)
	assert.Equal(t, `1 word removed, 5 words added (e.g. "included")`, result.DiffSummary)
}

func TestDetect_TextExamplesAreCapped(t *testing.T) {
	result := change.Detect(
		textNV("h1", "Red shirt with blue trim and green buttons plus yellow laces"),
		textNV("h2", "Pink shirt with navy trim and olive buttons plus orange laces"),
		schemas.RuleTypeText,
	)

	require.NotNil(t, result.DiffDetails)
	assert.Equal(t, 4, result.DiffDetails.RemovedCount)
	assert.Equal(t, 4, result.DiffDetails.AddedCount)
	assert.Equal(t, []string{"Red", "blue", "green"}, result.DiffDetails.RemovedExamples)
	assert.Equal(t, []string{"Pink", "navy", "olive"}, result.DiffDetails.AddedExamples)
	assert.Equal(t, `4 words removed, 4 words added (e.g. "Red")`, result.DiffSummary)
}

func TestDetect_TextLongExampleIsTruncated(t *testing.T) {
	result := change.Detect(
		textNV("h1", "one two three four five six seven eight nine ten changed"),
		textNV("h2", "totally different text"),
		schemas.RuleTypeText,
	)

	assert.Equal(t, `11 words removed, 3 words added (e.g. "one two three four five six seven eight ...")`, result.DiffSummary)
	require.NotNil(t, result.DiffDetails)
	// Structured examples keep the full phrase; only the summary truncates.
	require.Len(t, result.DiffDetails.RemovedExamples, 1)
	assert.True(t, strings.HasSuffix(result.DiffDetails.RemovedExamples[0], "changed"))
}

func TestDetect_TextChangeBeyondSnippet(t *testing.T) {
	result := change.Detect(
		textNV("aaa", "same visible text"),
		textNV("bbb", "same visible text"),
		schemas.RuleTypeText,
	)

	assert.True(t, result.Changed)
	assert.Equal(t, schemas.ChangeTextDiff, result.ChangeKind)
	assert.Equal(t, "Text changed beyond the stored snippet", result.DiffSummary)
	require.NotNil(t, result.DiffDetails)
	assert.Zero(t, result.DiffDetails.AddedCount)
	assert.Zero(t, result.DiffDetails.RemovedCount)
	assert.Empty(t, result.DiffDetails.AddedExamples)
	assert.Empty(t, result.DiffDetails.RemovedExamples)
}

func TestDetect_NullSafety(t *testing.T) {
	price := priceNV(10, "EUR")
	text := textNV("abc", "body")

	testCases := []struct {
		name     string
		previous *schemas.NormalizedValue
		current  *schemas.NormalizedValue
		ruleType schemas.RuleType
	}{
		{name: "Nil previous", previous: nil, current: price, ruleType: schemas.RuleTypePrice},
		{name: "Nil current", previous: price, current: nil, ruleType: schemas.RuleTypePrice},
		{name: "Both nil", previous: nil, current: nil, ruleType: schemas.RuleTypeText},
		{
			name:     "Missing variant on one side",
			previous: price,
			current:  &schemas.NormalizedValue{Kind: schemas.ValueKindPrice},
			ruleType: schemas.RuleTypePrice,
		},
		{name: "Wrong variant for the rule type", previous: text, current: text, ruleType: schemas.RuleTypePrice},
		{name: "Unknown rule type", previous: price, current: price, ruleType: schemas.RuleType("sentiment")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := change.Detect(tc.previous, tc.current, tc.ruleType)
			assert.False(t, result.Changed)
			assert.Empty(t, result.ChangeKind)
			assert.Empty(t, result.DiffSummary)
			assert.Nil(t, result.PercentChange)
			assert.Nil(t, result.DiffDetails)
		})
	}
}

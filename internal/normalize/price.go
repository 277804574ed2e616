package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/currency"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// currencySymbols maps common price symbols onto ISO codes. Multi-rune
// symbols come first; the bare dollar sign stays last because several
// composite symbols contain it.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"zł", "PLN"},
	{"Kč", "CZK"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
	{"₽", "RUB"},
	{"¥", "JPY"},
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"$", "USD"},
}

// isoCodeToken matches standalone uppercase three-letter tokens. Lowercase
// words are skipped on purpose; too many of them collide with ISO 4217 codes
// ("all", "try", "cup").
var isoCodeToken = regexp.MustCompile(`\b[A-Z]{3}\b`)

// Price parses raw price text into a typed value: numeric amount with
// separator disambiguation, currency from symbols or ISO codes, and integer
// cent mirrors computed up front so equality never re-derives them.
func Price(raw string) (schemas.NormalizedValue, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return schemas.NormalizedValue{}, fmt.Errorf("empty price text")
	}

	token := numberToken.FindString(trimmed)
	if token == "" {
		return schemas.NormalizedValue{}, fmt.Errorf("no numeric amount in %q", raw)
	}
	amount, ok := parseAmount(token)
	if !ok {
		return schemas.NormalizedValue{}, fmt.Errorf("unparsable amount %q in %q", token, raw)
	}

	return schemas.NormalizedValue{
		Kind: schemas.ValueKindPrice,
		Price: &schemas.PriceValue{
			Value:      amount,
			Currency:   detectCurrency(trimmed),
			ValueCents: centsOf(amount),
		},
	}, nil
}

// PriceFromSchema normalizes a price produced by the schema resolver. The
// resolver already isolated the amount; its meta contributes currency and the
// low/high bounds of offer ranges.
func PriceFromSchema(raw string, meta *schemas.SchemaMeta) (schemas.NormalizedValue, error) {
	nv, err := Price(raw)
	if err != nil {
		return nv, err
	}
	if meta == nil {
		return nv, nil
	}
	if meta.Currency != "" {
		nv.Price.Currency = canonicalISO(meta.Currency)
	}
	if meta.ValueLow != nil {
		low := *meta.ValueLow
		nv.Price.ValueLow = &low
		nv.Price.ValueLowCents = centsOf(low)
	}
	if meta.ValueHigh != nil {
		high := *meta.ValueHigh
		nv.Price.ValueHigh = &high
		nv.Price.ValueHighCents = centsOf(high)
	}
	return nv, nil
}

// Number parses a float out of text that may embed it in prose.
func Number(raw string) (schemas.NormalizedValue, error) {
	token := numberToken.FindString(raw)
	if token == "" {
		return schemas.NormalizedValue{}, fmt.Errorf("no numeric value in %q", raw)
	}
	f, ok := parseAmount(token)
	if !ok {
		return schemas.NormalizedValue{}, fmt.Errorf("unparsable number %q in %q", token, raw)
	}
	return schemas.NormalizedValue{Kind: schemas.ValueKindNumber, Number: &f}, nil
}

func detectCurrency(raw string) string {
	for _, s := range currencySymbols {
		if strings.Contains(raw, s.symbol) {
			return s.code
		}
	}
	for _, token := range isoCodeToken.FindAllString(raw, -1) {
		if unit, err := currency.ParseISO(token); err == nil {
			return unit.String()
		}
	}
	return ""
}

// canonicalISO validates and canonicalizes a currency code. Unknown codes
// pass through uppercased rather than being discarded.
func canonicalISO(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return code
}

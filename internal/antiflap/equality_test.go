package antiflap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/antiflap"
)

func int64Ptr(v int64) *int64     { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func priceValue(p schemas.PriceValue) *schemas.NormalizedValue {
	return &schemas.NormalizedValue{Kind: schemas.ValueKindPrice, Price: &p}
}

func TestEqual_Price(t *testing.T) {
	t.Run("Equal cents match regardless of valueHigh", func(t *testing.T) {
		a := priceValue(schemas.PriceValue{Value: 19.99, Currency: "EUR", ValueCents: int64Ptr(1999)})
		b := priceValue(schemas.PriceValue{
			Value:      19.99,
			Currency:   "EUR",
			ValueCents: int64Ptr(1999),
			ValueHigh:  floatPtr(49.99),
		})
		assert.True(t, antiflap.Equal(a, b), "a moving range ceiling must not flap the value")
	})

	t.Run("Cents comparison is preferred over drifting floats", func(t *testing.T) {
		a := priceValue(schemas.PriceValue{Value: 19.990000001, Currency: "EUR", ValueCents: int64Ptr(1999)})
		b := priceValue(schemas.PriceValue{Value: 19.99, Currency: "EUR", ValueCents: int64Ptr(1999)})
		assert.True(t, antiflap.Equal(a, b))

		c := priceValue(schemas.PriceValue{Value: 19.99, Currency: "EUR", ValueCents: int64Ptr(2000)})
		assert.False(t, antiflap.Equal(a, c))
	})

	t.Run("Float fallback when either side lacks cents", func(t *testing.T) {
		a := priceValue(schemas.PriceValue{Value: 19.99, Currency: "EUR"})
		b := priceValue(schemas.PriceValue{Value: 19.99, Currency: "EUR", ValueCents: int64Ptr(1999)})
		assert.True(t, antiflap.Equal(a, b))

		c := priceValue(schemas.PriceValue{Value: 20.00, Currency: "EUR"})
		assert.False(t, antiflap.Equal(a, c))
	})

	t.Run("Currency must match exactly", func(t *testing.T) {
		a := priceValue(schemas.PriceValue{Value: 19.99, Currency: "EUR", ValueCents: int64Ptr(1999)})
		b := priceValue(schemas.PriceValue{Value: 19.99, Currency: "USD", ValueCents: int64Ptr(1999)})
		assert.False(t, antiflap.Equal(a, b))
	})

	t.Run("Country matters only when both sides carry it", func(t *testing.T) {
		base := schemas.PriceValue{Value: 19.99, Currency: "EUR", ValueCents: int64Ptr(1999)}

		de := base
		de.Country = "DE"
		at := base
		at.Country = "AT"
		none := base

		assert.False(t, antiflap.Equal(priceValue(de), priceValue(at)), "two regional variants must not conflate")
		assert.True(t, antiflap.Equal(priceValue(de), priceValue(none)))
		assert.True(t, antiflap.Equal(priceValue(de), priceValue(de)))
	})
}

func TestEqual_Availability(t *testing.T) {
	availability := func(status schemas.AvailabilityStatus, lead *int) *schemas.NormalizedValue {
		return &schemas.NormalizedValue{
			Kind:         schemas.ValueKindAvailability,
			Availability: &schemas.AvailabilityValue{Status: status, LeadTimeDays: lead},
		}
	}

	assert.True(t, antiflap.Equal(
		availability(schemas.AvailabilityInStock, nil),
		availability(schemas.AvailabilityInStock, nil),
	))
	assert.True(t, antiflap.Equal(
		availability(schemas.AvailabilityLeadTime, intPtr(5)),
		availability(schemas.AvailabilityLeadTime, intPtr(5)),
	))
	assert.False(t, antiflap.Equal(
		availability(schemas.AvailabilityInStock, nil),
		availability(schemas.AvailabilityOutOfStock, nil),
	))
	assert.False(t, antiflap.Equal(
		availability(schemas.AvailabilityLeadTime, intPtr(5)),
		availability(schemas.AvailabilityLeadTime, intPtr(7)),
	), "a lead-time move is a real change")
	assert.False(t, antiflap.Equal(
		availability(schemas.AvailabilityLeadTime, intPtr(5)),
		availability(schemas.AvailabilityLeadTime, nil),
	))
}

func TestEqual_Text(t *testing.T) {
	text := func(hash, snippet string) *schemas.NormalizedValue {
		return &schemas.NormalizedValue{
			Kind: schemas.ValueKindText,
			Text: &schemas.TextValue{Hash: hash, Snippet: snippet},
		}
	}

	assert.True(t, antiflap.Equal(text("abc", "one snippet"), text("abc", "another snippet")),
		"only the hash participates in text equality")
	assert.False(t, antiflap.Equal(text("abc", "x"), text("def", "x")))
}

func TestEqual_Number(t *testing.T) {
	number := func(v float64) *schemas.NormalizedValue {
		return &schemas.NormalizedValue{Kind: schemas.ValueKindNumber, Number: &v}
	}

	assert.True(t, antiflap.Equal(number(4.8), number(4.8)))
	assert.False(t, antiflap.Equal(number(4.8), number(4.9)))
}

func TestEqual_NilHandling(t *testing.T) {
	v := priceValue(schemas.PriceValue{Value: 1})

	assert.True(t, antiflap.Equal(nil, nil))
	assert.False(t, antiflap.Equal(v, nil))
	assert.False(t, antiflap.Equal(nil, v))
}

func TestEqual_MixedKindsNeverMatch(t *testing.T) {
	p := priceValue(schemas.PriceValue{Value: 5})
	n := &schemas.NormalizedValue{Kind: schemas.ValueKindNumber, Number: floatPtr(5)}
	assert.False(t, antiflap.Equal(p, n))
}

func TestEqual_GenericShapeDispatch(t *testing.T) {
	generic := func(payload interface{}) *schemas.NormalizedValue {
		return &schemas.NormalizedValue{Kind: schemas.ValueKindGeneric, Generic: payload}
	}

	t.Run("Price-shaped maps keep price semantics", func(t *testing.T) {
		a := generic(map[string]interface{}{"value": 19.99, "currency": "EUR", "valueHigh": 49.99})
		b := generic(map[string]interface{}{"value": 19.99, "currency": "EUR"})
		assert.True(t, antiflap.Equal(a, b), "valueHigh stays ignored for legacy maps")

		c := generic(map[string]interface{}{"value": 19.99, "currency": "USD"})
		assert.False(t, antiflap.Equal(a, c))
	})

	t.Run("Status-shaped maps compare status and lead time", func(t *testing.T) {
		a := generic(map[string]interface{}{"status": "in_stock"})
		b := generic(map[string]interface{}{"status": "in_stock"})
		c := generic(map[string]interface{}{"status": "out_of_stock"})
		assert.True(t, antiflap.Equal(a, b))
		assert.False(t, antiflap.Equal(a, c))

		d := generic(map[string]interface{}{"status": "lead_time", "leadTimeDays": float64(5)})
		e := generic(map[string]interface{}{"status": "lead_time", "leadTimeDays": float64(7)})
		assert.False(t, antiflap.Equal(d, e))
	})

	t.Run("Hash-shaped maps compare hashes only", func(t *testing.T) {
		a := generic(map[string]interface{}{"hash": "abc", "snippet": "old"})
		b := generic(map[string]interface{}{"hash": "abc", "snippet": "new"})
		assert.True(t, antiflap.Equal(a, b))
	})

	t.Run("Unshaped payloads use canonical deep equality", func(t *testing.T) {
		a := generic(map[string]interface{}{"a": 1.0, "b": map[string]interface{}{"c": 2.0}})
		b := generic(map[string]interface{}{"b": map[string]interface{}{"c": 2.0}, "a": 1.0})
		assert.True(t, antiflap.Equal(a, b), "key order never matters")

		c := generic([]interface{}{1.0, 2.0})
		d := generic([]interface{}{2.0, 1.0})
		assert.False(t, antiflap.Equal(c, d), "array order still matters")

		assert.True(t, antiflap.Equal(generic("same"), generic("same")))
		assert.False(t, antiflap.Equal(generic("same"), generic("other")))
	})
}

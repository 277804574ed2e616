package antiflap

import (
	"github.com/google/go-cmp/cmp"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// Equal is the value-kind-aware equality the state machine runs on. It is
// never used by the normalizer; normalization decides what a value is, this
// decides whether two observations are the same value.
func Equal(a, b *schemas.NormalizedValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ka, kb := effectiveKind(a), effectiveKind(b)
	if ka != kb {
		return false
	}

	switch ka {
	case schemas.ValueKindPrice:
		return priceEqual(a.Price, b.Price)
	case schemas.ValueKindAvailability:
		return availabilityEqual(a.Availability, b.Availability)
	case schemas.ValueKindText:
		return textEqual(a.Text, b.Text)
	case schemas.ValueKindNumber:
		return floatPtrEqual(a.Number, b.Number)
	default:
		return genericEqual(a.Generic, b.Generic)
	}
}

// effectiveKind returns the declared kind, inferring it from the populated
// variant for legacy values that never set the discriminant.
func effectiveKind(v *schemas.NormalizedValue) schemas.ValueKind {
	if v.Kind != "" && v.Kind != schemas.ValueKindGeneric {
		return v.Kind
	}
	switch {
	case v.Price != nil:
		return schemas.ValueKindPrice
	case v.Availability != nil:
		return schemas.ValueKindAvailability
	case v.Text != nil:
		return schemas.ValueKindText
	case v.Number != nil:
		return schemas.ValueKindNumber
	default:
		return schemas.ValueKindGeneric
	}
}

// priceEqual compares the integer-cents representation when both sides carry
// it, avoiding floating-point drift, and falls back to the float otherwise.
// Currency must match exactly; a country tag must match when both sides have
// one. The high end of a range is intentionally ignored so a moving range
// ceiling alone never flaps the value.
func priceEqual(a, b *schemas.PriceValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ValueCents != nil && b.ValueCents != nil {
		if *a.ValueCents != *b.ValueCents {
			return false
		}
	} else if a.Value != b.Value {
		return false
	}
	if a.Currency != b.Currency {
		return false
	}
	if a.Country != "" && b.Country != "" && a.Country != b.Country {
		return false
	}
	return true
}

func availabilityEqual(a, b *schemas.AvailabilityValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Status != b.Status {
		return false
	}
	return intPtrEqual(a.LeadTimeDays, b.LeadTimeDays)
}

// textEqual compares hashes only; snippet differences are display noise.
func textEqual(a, b *schemas.TextValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Hash == b.Hash
}

// genericEqual handles untyped legacy payloads. Maps still dispatch by shape
// markers, so an old price-shaped map keeps price semantics; everything else
// uses canonical deep equality, which is independent of object key order.
func genericEqual(a, b interface{}) bool {
	ma, aOK := a.(map[string]interface{})
	mb, bOK := b.(map[string]interface{})
	if aOK && bOK {
		return genericShapeEqual(ma, mb)
	}
	return cmp.Equal(a, b)
}

func genericShapeEqual(a, b map[string]interface{}) bool {
	switch {
	case hasAnyKey(a, "value", "valueLow", "valueLowCents") || hasAnyKey(b, "value", "valueLow", "valueLowCents"):
		return genericPriceEqual(a, b)
	case hasAnyKey(a, "status") || hasAnyKey(b, "status"):
		sa, _ := a["status"].(string)
		sb, _ := b["status"].(string)
		if sa != sb {
			return false
		}
		la, laOK := genericNumber(a, "leadTimeDays")
		lb, lbOK := genericNumber(b, "leadTimeDays")
		return laOK == lbOK && la == lb
	case hasAnyKey(a, "hash") || hasAnyKey(b, "hash"):
		ha, _ := a["hash"].(string)
		hb, _ := b["hash"].(string)
		return ha == hb
	default:
		return cmp.Equal(a, b)
	}
}

func genericPriceEqual(a, b map[string]interface{}) bool {
	ca, caOK := genericNumber(a, "valueCents")
	cb, cbOK := genericNumber(b, "valueCents")
	if caOK && cbOK {
		if ca != cb {
			return false
		}
	} else {
		va, vaOK := genericNumber(a, "value")
		vb, vbOK := genericNumber(b, "value")
		if vaOK != vbOK || va != vb {
			return false
		}
	}

	cura, _ := a["currency"].(string)
	curb, _ := b["currency"].(string)
	if cura != curb {
		return false
	}

	countryA, _ := a["country"].(string)
	countryB, _ := b["country"].(string)
	if countryA != "" && countryB != "" && countryA != countryB {
		return false
	}
	return true
}

func genericNumber(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func hasAnyKey(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

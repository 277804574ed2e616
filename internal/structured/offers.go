package structured

import (
	"strconv"
	"strings"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// priceBounds is the one-pass min/max aggregation over an entity's offers.
// Folding every item keeps the emitted value independent of array ordering,
// so repeated observations of the same semantic data stay stable. Each bound
// remembers the source text of the offer that supplied it, so the emitted
// raw value reads exactly as the document wrote it ("42.50" stays "42.50").
type priceBounds struct {
	low              float64
	high             float64
	lowRaw           string
	highRaw          string
	currency         string
	currencyConflict bool
	found            bool
}

func (b *priceBounds) add(price float64, raw, currency string) {
	if !b.found {
		b.low, b.high = price, price
		b.lowRaw, b.highRaw = raw, raw
		b.currency, b.found = currency, true
		return
	}
	if price < b.low {
		b.low, b.lowRaw = price, raw
	}
	if price > b.high {
		b.high, b.highRaw = price, raw
	}
	switch {
	case b.currency == "":
		b.currency = currency
	case currency != "" && !strings.EqualFold(currency, b.currency):
		b.currencyConflict = true
	}
}

func resolveOffers(offers interface{}) priceBounds {
	var bounds priceBounds
	foldOffers(offers, 0, &bounds)
	return bounds
}

func foldOffers(node interface{}, depth int, bounds *priceBounds) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]interface{}:
		foldOfferObject(v, depth, bounds)
	case []interface{}:
		for i, item := range v {
			if i >= maxArrayItems {
				break
			}
			if m, ok := item.(map[string]interface{}); ok {
				foldOfferObject(m, depth, bounds)
			}
		}
	}
}

// foldOfferObject folds one offer into the bounds. An AggregateOffer's
// lowPrice/highPrice take precedence over any nested offer array, which is
// only descended into when the object itself carries no usable price.
func foldOfferObject(offer map[string]interface{}, depth int, bounds *priceBounds) {
	currency := stringField(offer, "priceCurrency")

	low, lowRaw, lowOK := numericField(offer, "lowPrice")
	high, highRaw, highOK := numericField(offer, "highPrice")
	if lowOK || highOK {
		if lowOK {
			bounds.add(low, lowRaw, currency)
		}
		if highOK {
			bounds.add(high, highRaw, currency)
		}
		return
	}

	if price, raw, ok := numericField(offer, "price"); ok {
		bounds.add(price, raw, currency)
		return
	}

	if nested, ok := offer["offers"]; ok {
		foldOffers(nested, depth+1, bounds)
	}
}

// offersAvailability returns the mapped status of the first offer exposing an
// availability token, in declaration order.
func offersAvailability(node interface{}, depth int) (schemas.AvailabilityStatus, bool) {
	if depth > maxDepth {
		return "", false
	}
	switch v := node.(type) {
	case map[string]interface{}:
		if raw := stringField(v, "availability"); raw != "" {
			return MapAvailability(raw), true
		}
		if nested, ok := v["offers"]; ok {
			return offersAvailability(nested, depth+1)
		}
	case []interface{}:
		for i, item := range v {
			if i >= maxArrayItems {
				break
			}
			if status, ok := offersAvailability(item, depth+1); ok {
				return status, true
			}
		}
	}
	return "", false
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func numericField(m map[string]interface{}, key string) (float64, string, bool) {
	v, ok := m[key]
	if !ok {
		return 0, "", false
	}
	return asNumber(v)
}

// asNumber accepts JSON numbers and numeric strings; schema.org price fields
// appear as both in the wild. String values keep their trimmed source text,
// JSON numbers are rendered with the shortest exact representation.
func asNumber(v interface{}) (float64, string, bool) {
	switch n := v.(type) {
	case float64:
		return n, strconv.FormatFloat(n, 'f', -1, 64), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, "", false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Tolerate a decimal comma.
			f, err = strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
			if err != nil {
				return 0, "", false
			}
		}
		return f, s, true
	default:
		return 0, "", false
	}
}

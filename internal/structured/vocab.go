package structured

import (
	"strings"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// availabilityVocab maps canonicalized schema.org availability tokens onto
// the closed status set. LimitedAvailability and the store-channel variants
// still mean the item can be bought, so they resolve to in_stock.
var availabilityVocab = map[string]schemas.AvailabilityStatus{
	"instock":             schemas.AvailabilityInStock,
	"outofstock":          schemas.AvailabilityOutOfStock,
	"soldout":             schemas.AvailabilityOutOfStock,
	"preorder":            schemas.AvailabilityLeadTime,
	"presale":             schemas.AvailabilityLeadTime,
	"backorder":           schemas.AvailabilityLeadTime,
	"discontinued":        schemas.AvailabilityDiscontinued,
	"limitedavailability": schemas.AvailabilityInStock,
	"instoreonly":         schemas.AvailabilityInStock,
	"onlineonly":          schemas.AvailabilityInStock,
}

// MapAvailability translates a schema.org availability token into a status.
// It tolerates the full URL forms ("https://schema.org/InStock"), the
// "schema:" prefix, and loose casing or separators ("in stock", "IN_STOCK").
// Unrecognized tokens map to unknown rather than failing.
func MapAvailability(raw string) schemas.AvailabilityStatus {
	token := strings.TrimSpace(raw)
	if token == "" {
		return schemas.AvailabilityUnknown
	}
	// URL forms keep only the last path segment.
	if i := strings.LastIndexByte(token, '/'); i >= 0 {
		token = token[i+1:]
	}
	token = strings.TrimPrefix(strings.ToLower(token), "schema:")

	var b strings.Builder
	for _, r := range token {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if status, ok := availabilityVocab[b.String()]; ok {
		return status
	}
	return schemas.AvailabilityUnknown
}

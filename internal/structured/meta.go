package structured

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

var (
	metaPriceProps    = []string{"product:price:amount", "og:price:amount"}
	metaCurrencyProps = []string{"product:price:currency", "og:price:currency"}
)

const metaAvailabilityProp = "product:availability"

func metaContent(doc *goquery.Document, property string) string {
	sel := doc.Find(`meta[property="` + property + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

// hasMetaTags reports whether the document carries any of the product meta
// tags the meta path can read. Recorded on fingerprints for drift context.
func hasMetaTags(doc *goquery.Document) bool {
	for _, prop := range metaPriceProps {
		if metaContent(doc, prop) != "" {
			return true
		}
	}
	return metaContent(doc, metaAvailabilityProp) != ""
}

// resolveMeta is the meta-tag extraction path: product:price:amount then
// og:price:amount for prices, product:availability for stock status.
func (r *Resolver) resolveMeta(doc *goquery.Document, query *schemas.SchemaQuery) schemas.SchemaResult {
	meta := &schemas.SchemaMeta{Source: schemas.SourceMeta}

	if query.Kind == schemas.SchemaKindAvailability {
		raw := metaContent(doc, metaAvailabilityProp)
		if raw == "" {
			return failure(ErrNoMetaTags)
		}
		return schemas.SchemaResult{
			Success:  true,
			RawValue: string(MapAvailability(raw)),
			Meta:     meta,
		}
	}

	var amount string
	for _, prop := range metaPriceProps {
		if amount = metaContent(doc, prop); amount != "" {
			break
		}
	}
	if amount == "" {
		return failure(ErrNoMetaTags)
	}

	for _, prop := range metaCurrencyProps {
		if c := metaContent(doc, prop); c != "" {
			meta.Currency = strings.ToUpper(c)
			break
		}
	}
	return schemas.SchemaResult{Success: true, RawValue: amount, Meta: meta}
}

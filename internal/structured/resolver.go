// Package structured resolves product values out of embedded structured data.
// Unlike the selector engine it is entity-based, not path-based: JSON-LD
// blocks nest product entities arbitrarily deep under vendor-specific wrapper
// keys, so the resolver traverses everything within bounded depth and scores
// what it finds instead of addressing a fixed path.
package structured

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Traversal bounds. Real product pages stay well inside these; pathological
// or adversarial documents get cut off instead of blowing the stack.
const (
	maxBlocks     = 10
	maxDepth      = 5
	maxArrayItems = 20
)

// Resolver failure messages. Each failure mode has its own string so callers
// can tell apart an unstructured page from a malformed one.
const (
	ErrEmptyInput       = "Empty HTML input"
	ErrNoBlocks         = "No structured data blocks found"
	ErrNoProductEntity  = "No Product entity found in structured data"
	ErrNoOffers         = "Product entity has no offers"
	ErrOffersUnparsable = "Offers could not be parsed"
	ErrNoMetaTags       = "No product meta tags found"
)

// productFamily is the set of schema.org types treated as sellable products.
// Keys are canonicalized (lowercase, prefix-stripped).
var productFamily = map[string]struct{}{
	"product":           {},
	"productmodel":      {},
	"productgroup":      {},
	"individualproduct": {},
	"someproducts":      {},
	"vehicle":           {},
	"car":               {},
	"motorcycle":        {},
	"book":              {},
	"drug":              {},
}

// Resolver extracts price or availability values from JSON-LD and product
// meta tags.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a schema entity resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger.Named("structured")}
}

// Resolve runs the query against the document. All failure modes return
// success=false with a distinct message; Resolve never panics on hostile
// input.
func (r *Resolver) Resolve(rawHTML string, query *schemas.SchemaQuery) schemas.SchemaResult {
	if query == nil {
		query = &schemas.SchemaQuery{Kind: schemas.SchemaKindPrice}
	}
	if strings.TrimSpace(rawHTML) == "" {
		return failure(ErrEmptyInput)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return failure(ErrEmptyInput)
	}

	source := query.Source
	if source == "" {
		source = schemas.SourceAuto
	}

	switch source {
	case schemas.SourceJSONLD:
		res, _ := r.resolveJSONLD(doc, query)
		return res
	case schemas.SourceMeta:
		return r.resolveMeta(doc, query)
	default:
		res, sawTypes := r.resolveJSONLD(doc, query)
		if res.Success {
			return res
		}
		metaRes := r.resolveMeta(doc, query)
		if metaRes.Success {
			return metaRes
		}
		// Both paths failed. The structured-data failure is the more
		// specific diagnosis unless the page had no typed content at all.
		if !sawTypes {
			return metaRes
		}
		return res
	}
}

// resolveJSONLD runs the structured-data path. The second return reports
// whether any @type-bearing object was seen, which the auto source uses to
// decide which failure to surface.
func (r *Resolver) resolveJSONLD(doc *goquery.Document, query *schemas.SchemaQuery) (schemas.SchemaResult, bool) {
	blocks := r.collectBlocks(doc)
	if len(blocks) == 0 {
		return failure(ErrNoBlocks), false
	}

	scan := scanBlocks(blocks)
	if scan.winner == nil {
		return failure(ErrNoProductEntity), scan.sawType
	}

	meta := &schemas.SchemaMeta{
		Source:      schemas.SourceJSONLD,
		EntityType:  scan.winner.entityType,
		Fingerprint: newFingerprint(scan.winner.entity, scan.types, len(blocks), hasMetaTags(doc)),
	}

	offers, hasOffers := scan.winner.entity["offers"]
	if !hasOffers {
		return failureWithMeta(ErrNoOffers, meta), true
	}

	if query.Kind == schemas.SchemaKindAvailability {
		status, ok := offersAvailability(offers, 0)
		if !ok {
			return failureWithMeta(ErrOffersUnparsable, meta), true
		}
		return schemas.SchemaResult{Success: true, RawValue: string(status), Meta: meta}, true
	}

	bounds := resolveOffers(offers)
	if !bounds.found {
		return failureWithMeta(ErrOffersUnparsable, meta), true
	}

	meta.Currency = strings.ToUpper(bounds.currency)
	meta.CurrencyConflict = bounds.currencyConflict
	meta.ValueLow = floatPtr(bounds.low)
	meta.ValueHigh = floatPtr(bounds.high)

	value := bounds.lowRaw
	if query.Prefer == schemas.PreferHigh {
		value = bounds.highRaw
	}
	return schemas.SchemaResult{
		Success:  true,
		RawValue: value,
		Meta:     meta,
	}, true
}

// collectBlocks parses the first maxBlocks JSON-LD script tags. Malformed
// blocks are skipped silently; a single broken block must not poison the rest
// of the page.
func (r *Resolver) collectBlocks(doc *goquery.Document) []interface{} {
	var blocks []interface{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxBlocks {
			return false
		}
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var parsed interface{}
		if err := json.UnmarshalFromString(raw, &parsed); err != nil {
			r.logger.Debug("Skipping malformed JSON-LD block.", zap.Int("index", i), zap.Error(err))
			return true
		}
		blocks = append(blocks, parsed)
		return true
	})
	return blocks
}

type candidate struct {
	entity     map[string]interface{}
	entityType string
	score      int
}

type scanResult struct {
	winner  *candidate
	types   []string
	sawType bool
}

// scanBlocks traverses every block, scores each product-family entity, and
// keeps the highest scorer. Ties keep the first entity encountered in
// traversal order.
func scanBlocks(blocks []interface{}) scanResult {
	var res scanResult
	typeSet := make(map[string]struct{})

	for _, block := range blocks {
		walkEntities(block, 0, func(m map[string]interface{}) {
			names := typeNames(m)
			if len(names) > 0 {
				res.sawType = true
				for _, n := range names {
					typeSet[canonicalTypeName(n)] = struct{}{}
				}
			}
			family := productFamilyType(names)
			if family == "" {
				return
			}
			score := scoreEntity(m)
			if res.winner == nil || score > res.winner.score {
				res.winner = &candidate{entity: m, entityType: family, score: score}
			}
		})
	}

	res.types = make([]string, 0, len(typeSet))
	for t := range typeSet {
		res.types = append(res.types, t)
	}
	sort.Strings(res.types)
	return res
}

// walkEntities visits every object in the tree within the depth and array
// caps. Map keys are visited in sorted order so that traversal order, and
// with it tie-breaking, is deterministic.
func walkEntities(node interface{}, depth int, visit func(map[string]interface{})) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]interface{}:
		visit(v)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkEntities(v[k], depth+1, visit)
		}
	case []interface{}:
		for i, item := range v {
			if i >= maxArrayItems {
				break
			}
			walkEntities(item, depth+1, visit)
		}
	}
}

// typeNames reads the @type tag, which may be a string or an array.
func typeNames(m map[string]interface{}) []string {
	switch t := m["@type"].(type) {
	case string:
		return []string{t}
	case []interface{}:
		names := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

// canonicalTypeName strips URL and curie prefixes but keeps the original
// casing of the final segment.
func canonicalTypeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// productFamilyType returns the first product-family type among the names, or
// "" when the entity is not a product.
func productFamilyType(names []string) string {
	for _, name := range names {
		canonical := canonicalTypeName(name)
		if _, ok := productFamily[strings.ToLower(canonical)]; ok {
			return canonical
		}
	}
	return ""
}

// scoreEntity ranks how product-like an entity is. A rating without offers
// usually marks a review page rather than a sellable listing, hence the
// penalty.
func scoreEntity(m map[string]interface{}) int {
	score := 0
	_, hasOffers := m["offers"]
	if hasOffers {
		score += 10
	}
	if _, ok := m["name"]; ok {
		score += 5
	}
	if _, ok := m["sku"]; ok {
		score += 3
	}
	if _, ok := m["image"]; ok {
		score += 2
	}
	if _, ok := m["brand"]; ok {
		score += 2
	}
	if _, ok := m["description"]; ok {
		score++
	}
	if !hasOffers {
		if _, ok := m["aggregateRating"]; ok {
			score -= 5
		}
	}
	return score
}

func failure(msg string) schemas.SchemaResult {
	return schemas.SchemaResult{Success: false, Error: msg}
}

// failureWithMeta keeps the fingerprint on failed resolutions so drift
// detection still sees the page's structure.
func failureWithMeta(msg string, meta *schemas.SchemaMeta) schemas.SchemaResult {
	return schemas.SchemaResult{Success: false, Error: msg, Meta: meta}
}

func floatPtr(v float64) *float64 {
	return &v
}

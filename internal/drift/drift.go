// Package drift compares structured-data fingerprints between observations.
// Its output is advisory: a selector-healing process consumes it, but
// extraction proceeds regardless of what it reports.
package drift

import (
	"fmt"
	"strings"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// blockCountTolerance absorbs ordinary page noise. Ad and analytics blocks
// come and go; only a larger swing suggests a rebuilt page.
const blockCountTolerance = 2

// Detect reports whether the page's structured data changed shape between two
// fingerprints. A missing fingerprint on either side means there is nothing
// to compare, not drift. Checks run in severity order and the first hit
// supplies the reason.
func Detect(old, current *schemas.SchemaFingerprint) schemas.DriftResult {
	if old == nil || current == nil {
		return schemas.DriftResult{}
	}

	if old.ShapeHash != current.ShapeHash {
		return schemas.DriftResult{Drifted: true, Reason: "Schema entity shape changed"}
	}

	delta := current.JSONLDBlockCount - old.JSONLDBlockCount
	if delta < 0 {
		delta = -delta
	}
	if delta > blockCountTolerance {
		return schemas.DriftResult{
			Drifted: true,
			Reason: fmt.Sprintf("JSON-LD block count moved from %d to %d",
				old.JSONLDBlockCount, current.JSONLDBlockCount),
		}
	}

	if !typeSetsEqual(old.SchemaTypes, current.SchemaTypes) {
		return schemas.DriftResult{
			Drifted: true,
			Reason: fmt.Sprintf("Entity types changed from [%s] to [%s]",
				strings.Join(old.SchemaTypes, ", "), strings.Join(current.SchemaTypes, ", ")),
		}
	}

	return schemas.DriftResult{}
}

// typeSetsEqual compares type names as case-insensitive sets. Order and
// duplicates carry no meaning.
func typeSetsEqual(a, b []string) bool {
	setOf := func(names []string) map[string]struct{} {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[strings.ToLower(n)] = struct{}{}
		}
		return set
	}
	as, bs := setOf(a), setOf(b)
	if len(as) != len(bs) {
		return false
	}
	for n := range as {
		if _, ok := bs[n]; !ok {
			return false
		}
	}
	return true
}

package structured

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// collectKeyPaths walks the entity gathering every nested key path reachable
// within the depth cap. Array elements contribute their paths under a shared
// "[]" segment, which makes the resulting set insensitive to element order.
func collectKeyPaths(node interface{}, prefix string, depth int, paths map[string]struct{}) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			paths[path] = struct{}{}
			collectKeyPaths(child, path, depth+1, paths)
		}
	case []interface{}:
		for i, item := range v {
			if i >= maxArrayItems {
				break
			}
			collectKeyPaths(item, prefix+"[]", depth+1, paths)
		}
	}
}

// ShapeHash digests the sorted set of nested key paths of an entity. The hash
// is insensitive to key order and array element order but sensitive to the
// structural shape, which is exactly what drift comparison needs.
func ShapeHash(entity map[string]interface{}) string {
	paths := make(map[string]struct{})
	collectKeyPaths(entity, "", 0, paths)

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

func newFingerprint(entity map[string]interface{}, types []string, blockCount int, hasMeta bool) *schemas.SchemaFingerprint {
	_, hasOffers := entity["offers"]
	return &schemas.SchemaFingerprint{
		SchemaTypes:      types,
		ShapeHash:        ShapeHash(entity),
		JSONLDBlockCount: blockCount,
		HasOffers:        hasOffers,
		HasMeta:          hasMeta,
		Timestamp:        time.Now().UTC(),
	}
}

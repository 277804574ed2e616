package normalize

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// snippetRuneLimit bounds the stored display excerpt. Comparison uses the
// hash, so truncation never affects change detection.
const snippetRuneLimit = 512

// Text hashes the extracted content and keeps a bounded snippet for display.
func Text(raw string) schemas.NormalizedValue {
	sum := sha256.Sum256([]byte(raw))

	snippet := raw
	runes := []rune(raw)
	if len(runes) > snippetRuneLimit {
		snippet = string(runes[:snippetRuneLimit])
	}

	return schemas.NormalizedValue{
		Kind: schemas.ValueKindText,
		Text: &schemas.TextValue{
			Hash:    hex.EncodeToString(sum[:]),
			Snippet: snippet,
		},
	}
}

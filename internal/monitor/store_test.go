package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

func sampleRecord() *RuleRecord {
	return &RuleRecord{
		State: schemas.RuleState{
			RuleID: "r1",
			LastStable: &schemas.NormalizedValue{
				Kind: schemas.ValueKindText,
				Text: &schemas.TextValue{Hash: "abc", Snippet: "hello"},
			},
		},
		Fingerprint: &schemas.SchemaFingerprint{
			ShapeHash:        "h1",
			SchemaTypes:      []string{"Product"},
			JSONLDBlockCount: 1,
		},
	}
}

func TestMemoryStore_LoadMissingReturnsNil(t *testing.T) {
	store := NewMemoryStore()

	record, err := store.Load(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryStore_SaveValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.Error(t, store.Save(ctx, "", sampleRecord()))
	require.Error(t, store.Save(ctx, "r1", nil))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_CopiesBothDirections(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := sampleRecord()
	require.NoError(t, store.Save(ctx, "r1", original))

	// Mutating the saved record must not reach the stored copy.
	original.State.LastStable.Text.Hash = "mutated"
	original.Fingerprint.SchemaTypes[0] = "Mutated"

	loaded, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "abc", loaded.State.LastStable.Text.Hash)
	assert.Equal(t, "Product", loaded.Fingerprint.SchemaTypes[0])

	// Mutating a loaded record must not reach the stored copy either.
	loaded.State.LastStable.Text.Hash = "scribbled"
	loaded.Fingerprint.SchemaTypes[0] = "Scribbled"

	again, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "abc", again.State.LastStable.Text.Hash)
	assert.Equal(t, "Product", again.Fingerprint.SchemaTypes[0])
}

func TestMemoryStore_Len(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.Equal(t, 0, store.Len())
	require.NoError(t, store.Save(ctx, "a", sampleRecord()))
	require.NoError(t, store.Save(ctx, "b", sampleRecord()))
	require.NoError(t, store.Save(ctx, "a", sampleRecord()))
	assert.Equal(t, 2, store.Len())
}

func TestKeyedLocks_StableIdentity(t *testing.T) {
	locks := newKeyedLocks()

	assert.Same(t, locks.get("a"), locks.get("a"), "a key must always map to the same mutex")
	assert.NotSame(t, locks.get("a"), locks.get("b"))
}

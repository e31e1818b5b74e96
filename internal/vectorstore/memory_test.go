package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertAndSearch(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	err := store.Upsert(ctx, []Point{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{"repo": "r1"}},
		{ID: "b", Vector: []float32{0, 1}, Metadata: map[string]string{"repo": "r1"}},
		{ID: "c", Vector: []float32{1, 0.01}, Metadata: map[string]string{"repo": "r2"}},
	})
	require.NoError(t, err)

	results, err := store.SimilaritySearch(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryStoreFiltersByMetadata(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []Point{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{"repo": "r1"}},
		{ID: "b", Vector: []float32{1, 0}, Metadata: map[string]string{"repo": "r2"}},
	}))

	results, err := store.SimilaritySearch(ctx, []float32{1, 0}, 10, map[string]string{"repo": "r2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestMemoryStoreDeleteByMetadataPrunesMatches(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []Point{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{"repo": "r1", "path": "x.go"}},
		{ID: "b", Vector: []float32{1, 0}, Metadata: map[string]string{"repo": "r1", "path": "y.go"}},
	}))

	require.NoError(t, store.DeleteByMetadata(ctx, map[string]string{"repo": "r1", "path": "x.go"}))

	results, err := store.SimilaritySearch(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []Point{{ID: "a", Vector: []float32{1, 0}}}))
	require.NoError(t, store.Delete(ctx, []string{"a"}))
	results, err := store.SimilaritySearch(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

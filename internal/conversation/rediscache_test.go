package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCachedStoreDisabledIsPassThrough(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	cached, err := NewCachedStore(store, RedisConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cached.Save(ctx, Conversation{ID: "c1", Title: "hello"}))

	summaries := cached.Summaries(ctx)
	require.Len(t, summaries, 1)
	assert.Equal(t, "c1", summaries[0].ID)

	require.NoError(t, cached.Delete(ctx, "c1"))
	assert.Empty(t, cached.Summaries(ctx))
	assert.NoError(t, cached.Close())
}

func TestNewCachedStoreDisabledArchiveRestore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	cached, err := NewCachedStore(store, RedisConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cached.Save(ctx, Conversation{ID: "c1", Status: StatusActive}))
	require.NoError(t, cached.Archive(ctx, "c1"))
	conv, _, err := cached.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, conv.Status)

	require.NoError(t, cached.Restore(ctx, "c1"))
	conv, _, err = cached.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, conv.Status)
}

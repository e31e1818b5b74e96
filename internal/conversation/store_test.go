package conversation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	return s
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := Conversation{ID: "conv-1", Title: "hello", Status: StatusActive, Messages: []Message{NewUserMessage("m1", "hi")}}

	require.NoError(t, s.Save(ctx, conv))
	loaded, ok, err := s.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, conv.Title, loaded.Title)
	assert.Equal(t, conv.Messages[0].Text(), loaded.Messages[0].Text())
}

func TestStoreLoadMissingReturnsFalseNoError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCorruptionQuarantinesFileAndExcludesFromListIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Conversation{ID: "good", Title: "fine"}))

	badPath := s.recordPath("bad")
	require.NoError(t, os.WriteFile(badPath, []byte(`{...`), 0o644))

	conv, ok, err := s.Load(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Conversation{}, conv)

	_, statErr := os.Stat(badPath)
	assert.True(t, os.IsNotExist(statErr), "corrupted file must be removed from conversations/")

	quarantined := filepath.Join(s.corruptedDir(), "bad.json.corrupted")
	_, statErr = os.Stat(quarantined)
	assert.NoError(t, statErr, "corrupted file must be moved to corrupted/")

	ids := s.ListIDs(ctx)
	assert.NotContains(t, ids, "bad")
	assert.Contains(t, ids, "good")
}

func TestStoreRebuildsIndexWhenIndexFileCorrupted(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), Conversation{ID: "a", Title: "a title"}))

	require.NoError(t, os.WriteFile(s.indexPath(), []byte(`not json`), 0o644))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	ids := reopened.ListIDs(context.Background())
	assert.Equal(t, []string{"a"}, ids)
}

func TestStoreArchiveAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Conversation{ID: "c1", Status: StatusActive, LastActive: time.Now()}))

	require.NoError(t, s.Archive(ctx, "c1"))
	conv, _, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, conv.Status)

	require.NoError(t, s.Restore(ctx, "c1"))
	conv, _, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, conv.Status)
}

func TestStoreDeleteRemovesRecordAndIndexEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Conversation{ID: "c1"}))
	require.NoError(t, s.Delete(ctx, "c1"))

	ids := s.ListIDs(ctx)
	assert.NotContains(t, ids, "c1")
	_, ok, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

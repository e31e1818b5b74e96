package merkle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFileHashDeterministic(t *testing.T) {
	h1, err := ComputeFileHash(strings.NewReader("package main\n"))
	require.NoError(t, err)
	h2, err := ComputeFileHash(strings.NewReader("package main\n"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := ComputeFileHash(strings.NewReader("package other\n"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDirectoryHashOrderIndependent(t *testing.T) {
	a := []NamedHash{{Name: "a.go", Hash: "1"}, {Name: "b.go", Hash: "2"}}
	b := []NamedHash{{Name: "b.go", Hash: "2"}, {Name: "a.go", Hash: "1"}}
	assert.Equal(t, DirectoryHash(a), DirectoryHash(b))
}

func TestDirectoryHashSensitiveToContent(t *testing.T) {
	a := []NamedHash{{Name: "a.go", Hash: "1"}}
	b := []NamedHash{{Name: "a.go", Hash: "2"}}
	assert.NotEqual(t, DirectoryHash(a), DirectoryHash(b))
}

func TestCacheUpdateRemove(t *testing.T) {
	c := New()
	c.UpdateFile("src/a.go", FileFingerprint{RelPath: "src/a.go", Hash: "h1"})
	c.UpdateFile("src/b.go", FileFingerprint{RelPath: "src/b.go", Hash: "h2"})
	snap := c.Snapshot()
	assert.Len(t, snap.Files, 2)

	root1 := c.Root()
	c.RemoveFile("src/b.go")
	snap = c.Snapshot()
	assert.Len(t, snap.Files, 1)
	root2 := c.Root()
	assert.NotEqual(t, root1, root2, "removing a file must change the root hash")
}

func TestRootDeterministicAcrossInsertOrder(t *testing.T) {
	c1 := New()
	c1.UpdateFile("a/x.go", FileFingerprint{RelPath: "a/x.go", Hash: "1"})
	c1.UpdateFile("a/y.go", FileFingerprint{RelPath: "a/y.go", Hash: "2"})
	c1.UpdateFile("b/z.go", FileFingerprint{RelPath: "b/z.go", Hash: "3"})

	c2 := New()
	c2.UpdateFile("b/z.go", FileFingerprint{RelPath: "b/z.go", Hash: "3"})
	c2.UpdateFile("a/y.go", FileFingerprint{RelPath: "a/y.go", Hash: "2"})
	c2.UpdateFile("a/x.go", FileFingerprint{RelPath: "a/x.go", Hash: "1"})

	assert.Equal(t, c1.Root(), c2.Root())
}

func TestRootEmptyIsStable(t *testing.T) {
	assert.Equal(t, Root(NewSnapshot(nil)), Root(NewSnapshot(nil)))
}

func TestDiffAddedModifiedRemoved(t *testing.T) {
	previous := NewSnapshot([]FileFingerprint{
		{RelPath: "keep.go", Hash: "k1"},
		{RelPath: "change.go", Hash: "c1"},
		{RelPath: "gone.go", Hash: "g1"},
	})
	current := NewSnapshot([]FileFingerprint{
		{RelPath: "keep.go", Hash: "k1"},
		{RelPath: "change.go", Hash: "c2"},
		{RelPath: "new.go", Hash: "n1"},
	})

	diff := Diff(previous, current)
	assert.Equal(t, []string{"new.go"}, diff.Added)
	assert.Equal(t, []string{"change.go"}, diff.Modified)
	assert.Equal(t, []string{"gone.go"}, diff.Removed)
}

func TestDiffIgnoresAdvisoryMetadata(t *testing.T) {
	previous := NewSnapshot([]FileFingerprint{{RelPath: "a.go", Hash: "h1", ModTime: 1, Size: 10}})
	current := NewSnapshot([]FileFingerprint{{RelPath: "a.go", Hash: "h1", ModTime: 999, Size: 999}})
	diff := Diff(previous, current)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Modified)
	assert.Empty(t, diff.Removed)
}

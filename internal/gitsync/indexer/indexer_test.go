package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/gitsync/codeparser"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/gitport"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/planner"
	"github.com/llamaha/sagitta-sub008/internal/vectorstore"
)

type fakeRepo struct {
	files   map[string][]byte
	commits map[string]string
	tree    map[string][]gitport.TreeEntry
}

func (f *fakeRepo) CurrentBranch(ctx context.Context) (string, error) { return "main", nil }
func (f *fakeRepo) CommitHash(ctx context.Context, ref string) (string, error) {
	return f.commits[ref], nil
}
func (f *fakeRepo) ListBranches(ctx context.Context) ([]string, error)       { return nil, nil }
func (f *fakeRepo) ListRefs(ctx context.Context) (map[string]string, error) { return nil, nil }
func (f *fakeRepo) Checkout(ctx context.Context, ref string, force bool) error { return nil }
func (f *fakeRepo) Status(ctx context.Context) (gitport.Status, error) {
	return gitport.Status{Clean: true}, nil
}
func (f *fakeRepo) DiffTree(ctx context.Context, from, to string, detectRenames bool) ([]gitport.TreeChange, error) {
	return nil, nil
}
func (f *fakeRepo) WalkTree(ctx context.Context, commit string) ([]gitport.TreeEntry, error) {
	return f.tree[commit], nil
}
func (f *fakeRepo) ReadFile(ctx context.Context, relPath string) ([]byte, error) {
	content, ok := f.files[relPath]
	if !ok {
		return nil, errors.New("not found")
	}
	return content, nil
}
func (f *fakeRepo) Root() string { return "/fake" }

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func TestExecutorFullSyncIndexesAndPrunesStale(t *testing.T) {
	repo := &fakeRepo{
		files: map[string][]byte{
			"a.go": []byte("package a\nfunc A() {}\n"),
			"b.go": []byte("package a\nfunc B() {}\n"),
		},
		commits: map[string]string{"main": "c1"},
		tree: map[string][]gitport.TreeEntry{
			"c1": {{Path: "a.go"}, {Path: "b.go"}},
		},
	}
	store := vectorstore.NewMemoryStore(4)
	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Point{
		{ID: "stale-point", Vector: []float32{1, 2, 3, 4}, Metadata: map[string]string{"repo": "r1", "branch": "main", "path": "deleted.go"}},
	}))

	ex := New(codeparser.NewSimpleParser(), &fakeEmbedder{dim: 4}, store)
	processed, err := ex.Run(context.Background(), repo, planner.Requirement{Kind: planner.KindFull}, Options{Repo: "r1", Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	remaining, err := store.ListByMetadata(context.Background(), map[string]string{"repo": "r1", "branch": "main"})
	require.NoError(t, err)
	for _, p := range remaining {
		assert.NotEqual(t, "deleted.go", p.Metadata["path"])
	}
}

func TestExecutorIncrementalAddsUpdatesDeletes(t *testing.T) {
	repo := &fakeRepo{
		files: map[string][]byte{
			"new.go":     []byte("package a\nfunc New() {}\n"),
			"changed.go": []byte("package a\nfunc Changed() {}\n"),
		},
	}
	store := vectorstore.NewMemoryStore(4)
	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Point{
		{ID: "gone", Vector: []float32{1, 2, 3, 4}, Metadata: map[string]string{"repo": "r1", "branch": "main", "path": "gone.go"}},
	}))

	ex := New(codeparser.NewSimpleParser(), &fakeEmbedder{dim: 4}, store)
	req := planner.Requirement{Kind: planner.KindIncremental, FilesToAdd: []string{"new.go"}, FilesToUpdate: []string{"changed.go"}, FilesToDelete: []string{"gone.go"}}
	processed, err := ex.Run(context.Background(), repo, req, Options{Repo: "r1", Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	remaining, err := store.ListByMetadata(context.Background(), map[string]string{"repo": "r1", "branch": "main"})
	require.NoError(t, err)
	paths := make([]string, 0, len(remaining))
	for _, p := range remaining {
		paths = append(paths, p.Metadata["path"])
	}
	assert.ElementsMatch(t, []string{"changed.go", "new.go"}, paths, "gone.go's point is deleted; the added and updated files are one chunk each")
}

func TestExecutorFailureRatioAbortsSync(t *testing.T) {
	repo := &fakeRepo{
		files:   map[string][]byte{"ok.go": []byte("package a\n")},
		commits: map[string]string{"main": "c1"},
		tree: map[string][]gitport.TreeEntry{
			"c1": {{Path: "ok.go"}, {Path: "missing1.go"}, {Path: "missing2.go"}},
		},
	}
	store := vectorstore.NewMemoryStore(4)
	ex := New(codeparser.NewSimpleParser(), &fakeEmbedder{dim: 4}, store)
	_, err := ex.Run(context.Background(), repo, planner.Requirement{Kind: planner.KindFull}, Options{Repo: "r1", Branch: "main", MaxFailureRatio: 0.5})
	require.Error(t, err)
}

func TestExecutorNoneIsNoop(t *testing.T) {
	repo := &fakeRepo{}
	store := vectorstore.NewMemoryStore(4)
	ex := New(codeparser.NewSimpleParser(), &fakeEmbedder{dim: 4}, store)
	processed, err := ex.Run(context.Background(), repo, planner.Requirement{Kind: planner.KindNone}, Options{Repo: "r1", Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}

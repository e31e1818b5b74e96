package switcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/gitsync/gitport"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/planner"
)

type fakeRepo struct {
	branch       string
	clean        bool
	checkoutErr  error
	checkoutSeen string
	commits      map[string]string
}

func (f *fakeRepo) CurrentBranch(ctx context.Context) (string, error) { return f.branch, nil }
func (f *fakeRepo) CommitHash(ctx context.Context, ref string) (string, error) {
	if h, ok := f.commits[ref]; ok {
		return h, nil
	}
	return "deadbeef", nil
}
func (f *fakeRepo) ListBranches(ctx context.Context) ([]string, error)       { return nil, nil }
func (f *fakeRepo) ListRefs(ctx context.Context) (map[string]string, error) { return f.commits, nil }
func (f *fakeRepo) Checkout(ctx context.Context, ref string, force bool) error {
	f.checkoutSeen = ref
	if f.checkoutErr != nil {
		return f.checkoutErr
	}
	f.branch = ref
	return nil
}
func (f *fakeRepo) Status(ctx context.Context) (gitport.Status, error) {
	return gitport.Status{Clean: f.clean}, nil
}
func (f *fakeRepo) DiffTree(ctx context.Context, from, to string, detectRenames bool) ([]gitport.TreeChange, error) {
	return nil, nil
}
func (f *fakeRepo) WalkTree(ctx context.Context, commit string) ([]gitport.TreeEntry, error) {
	return nil, nil
}
func (f *fakeRepo) ReadFile(ctx context.Context, relPath string) ([]byte, error) { return nil, nil }
func (f *fakeRepo) Root() string                                                 { return "/fake" }

type fakeIndexer struct {
	filesChanged int
	err          error
}

func (f *fakeIndexer) Index(ctx context.Context, repo gitport.Repository, branch string, req planner.Requirement) (int, error) {
	return f.filesChanged, f.err
}

type fakeStateUpdater struct {
	state   *planner.RepositoryState
	updated map[string]string
	err     error
}

func (f *fakeStateUpdater) Load(ctx context.Context) (*planner.RepositoryState, error) {
	return f.state, nil
}
func (f *fakeStateUpdater) UpdateLastIndexed(ctx context.Context, branch, commit string) error {
	if f.err != nil {
		return f.err
	}
	if f.updated == nil {
		f.updated = map[string]string{}
	}
	f.updated[branch] = commit
	return nil
}

func TestSwitchDirtyWithoutForceFails(t *testing.T) {
	repo := &fakeRepo{branch: "main", clean: false}
	res := Switch(context.Background(), repo, "feature", &fakeIndexer{}, &fakeStateUpdater{}, Options{})
	assert.False(t, res.Success)
	assert.Equal(t, StateFailedDirty, res.FinalState)
	require.Error(t, res.Err)
}

func TestSwitchDirtyWithForceProceeds(t *testing.T) {
	repo := &fakeRepo{branch: "main", clean: false}
	res := Switch(context.Background(), repo, "feature", &fakeIndexer{}, &fakeStateUpdater{}, Options{Force: true})
	assert.True(t, res.Success)
	assert.Equal(t, "feature", repo.checkoutSeen)
}

func TestSwitchCleanNoAutoResyncStopsAtDone(t *testing.T) {
	repo := &fakeRepo{branch: "main", clean: true}
	res := Switch(context.Background(), repo, "feature", &fakeIndexer{}, &fakeStateUpdater{}, Options{})
	assert.True(t, res.Success)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Nil(t, res.SyncRequirement)
}

func TestSwitchCheckoutFailure(t *testing.T) {
	repo := &fakeRepo{branch: "main", clean: true, checkoutErr: errors.New("boom")}
	res := Switch(context.Background(), repo, "feature", &fakeIndexer{}, &fakeStateUpdater{}, Options{})
	assert.False(t, res.Success)
	assert.Equal(t, StateFailedCheckout, res.FinalState)
}

func TestSwitchAutoResyncSuccess(t *testing.T) {
	repo := &fakeRepo{branch: "main", clean: true, commits: map[string]string{"feature": "c2"}}
	updater := &fakeStateUpdater{state: &planner.RepositoryState{LastIndexedCommit: map[string]string{}}}
	res := Switch(context.Background(), repo, "feature", &fakeIndexer{filesChanged: 3}, updater, Options{AutoResync: true})
	assert.True(t, res.Success)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Equal(t, 3, res.FilesChangedCount)
	require.NotNil(t, res.SyncRequirement)
	assert.Equal(t, planner.KindFull, res.SyncRequirement.Kind) // no prior state -> Full
	assert.Equal(t, "c2", updater.updated["feature"])
}

func TestSwitchSyncFailureRetainsCheckoutButNotState(t *testing.T) {
	repo := &fakeRepo{branch: "main", clean: true, commits: map[string]string{"feature": "c2"}}
	updater := &fakeStateUpdater{state: &planner.RepositoryState{LastIndexedCommit: map[string]string{}}}
	indexErr := errors.New("index failed")
	res := Switch(context.Background(), repo, "feature", &fakeIndexer{err: indexErr}, updater, Options{AutoResync: true})

	assert.True(t, res.Success, "checkout succeeded even though sync failed")
	assert.Equal(t, StateFailedSync, res.FinalState)
	assert.Equal(t, "feature", repo.branch, "working tree stays on target branch")
	assert.Empty(t, updater.updated, "repository state must not advance on sync failure")
}

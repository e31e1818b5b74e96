// Package gitport defines the Git Port: the narrow surface the
// sync engine needs from a Git working tree, without committing to any
// particular Git implementation.
package gitport

import "context"

// ChangeStatus classifies one entry of a tree diff.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "A"
	StatusModified ChangeStatus = "M"
	StatusDeleted  ChangeStatus = "D"
	StatusRenamed  ChangeStatus = "R"
)

// TreeChange is one line of `git diff --name-status`.
type TreeChange struct {
	Status  ChangeStatus
	Path    string
	NewPath string // set only when Status == StatusRenamed
}

// TreeEntry is one file as walked at a given commit.
type TreeEntry struct {
	Path   string
	Size   int64
	BlobID string
}

// Repository is the Git Port: open-repo operations needed by the sync
// engine. Implementations are expected to be safe for concurrent
// read-only operations; the sync engine does not serialize mutating
// operations (checkout) on a repository, nor reject a second concurrent
// switch or sync of the same repository.
type Repository interface {
	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context) (string, error)
	// CommitHash resolves ref (branch, tag, or commit-ish) to a full hex commit id.
	CommitHash(ctx context.Context, ref string) (string, error)
	// ListBranches returns local branch names.
	ListBranches(ctx context.Context) ([]string, error)
	// ListRefs returns all refs (branches and tags) as ref-name -> commit hash.
	ListRefs(ctx context.Context) (map[string]string, error)
	// Checkout switches the working tree to ref. If force is true, local
	// changes are discarded rather than blocking the checkout.
	Checkout(ctx context.Context, ref string, force bool) error
	// Status reports whether the working tree has uncommitted changes.
	Status(ctx context.Context) (Status, error)
	// DiffTree returns the name-status diff between two commits. When
	// detectRenames is true, renames are reported as StatusRenamed with
	// both Path (old) and NewPath set; otherwise renames surface as a
	// delete+add pair.
	DiffTree(ctx context.Context, fromCommit, toCommit string, detectRenames bool) ([]TreeChange, error)
	// WalkTree lists every file tracked at commit.
	WalkTree(ctx context.Context, commit string) ([]TreeEntry, error)
	// ReadFile returns the working-tree contents of relPath.
	ReadFile(ctx context.Context, relPath string) ([]byte, error)
	// Root returns the repository's working directory.
	Root() string
}

// Status summarizes working-tree cleanliness.
type Status struct {
	Clean          bool
	ModifiedPaths  []string
	UntrackedPaths []string
}

// BranchExists reports whether ref names an existing branch or tag.
// Provided as a helper on top of ListRefs for callers that only need a
// boolean. (The Sync Planner's reclone detection uses CommitExists.)
func BranchExists(ctx context.Context, repo Repository, ref string) (bool, error) {
	refs, err := repo.ListRefs(ctx)
	if err != nil {
		return false, err
	}
	_, ok := refs[ref]
	return ok, nil
}

// CommitExists reports whether commit is reachable in the repository's
// history, used by the Sync Planner to detect a reclone/force-push
// ("last-indexed commit does not exist in repository history").
func CommitExists(ctx context.Context, repo Repository, commit string) bool {
	hash, err := repo.CommitHash(ctx, commit)
	return err == nil && hash != ""
}

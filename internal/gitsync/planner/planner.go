// Package planner implements the Sync Planner: deciding how
// much of a repository needs re-indexing after a branch points at a new
// commit, without ever walking more of the tree than necessary.
package planner

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/llamaha/sagitta-sub008/internal/gitsync/gitport"
)

// Kind classifies a Sync Requirement.
type Kind string

const (
	KindNone        Kind = "none"
	KindIncremental Kind = "incremental"
	KindFull        Kind = "full"
)

// Requirement is the Sync Planner's output: a value object describing the
// work the Indexing Executor must perform. Invariant: the three file sets
// are pairwise disjoint; for KindFull they are always empty (the executor
// treats the whole current tree as add).
type Requirement struct {
	Kind          Kind
	FilesToAdd    []string
	FilesToUpdate []string
	FilesToDelete []string
}

// RepositoryState is the subset of per-repository state the planner needs:
// the last commit indexed for each branch. The Sync Engine owns the full
// Repository State record; the planner only reads this slice.
type RepositoryState struct {
	LastIndexedCommit map[string]string // branch -> commit hash
}

// Options configures one planning call.
type Options struct {
	IgnorePatterns    []string
	FullSyncThreshold float64 // ratio of changed-to-tracked files that forces a Full sync; default 0.5
	DetectRenames     bool
	Force             bool
}

// Plan decides whether a repository needs a Full sync, an Incremental
// sync, or nothing, by diffing the target branch's current state against
// the last-recorded Repository State.
func Plan(ctx context.Context, repo gitport.Repository, targetBranch string, state *RepositoryState, opts Options) (Requirement, error) {
	if opts.Force {
		return Force(), nil
	}

	targetCommit, err := repo.CommitHash(ctx, targetBranch)
	if err != nil {
		return Requirement{}, err
	}

	// Step 1: no prior state at all.
	if state == nil || len(state.LastIndexedCommit) == 0 {
		return Requirement{Kind: KindFull}, nil
	}

	lastIndexed, hadPriorBranchState := state.LastIndexedCommit[targetBranch]
	if !hadPriorBranchState {
		return Requirement{Kind: KindFull}, nil
	}

	// Step 2: already at the last-indexed commit.
	if targetCommit == lastIndexed {
		return Requirement{Kind: KindNone}, nil
	}

	// Step 3: reclone / force-push detection.
	if !gitport.CommitExists(ctx, repo, lastIndexed) {
		return Requirement{Kind: KindFull}, nil
	}

	// Step 4: tree diff, ignore-filtered, mapped to add/update/delete sets.
	changes, err := repo.DiffTree(ctx, lastIndexed, targetCommit, opts.DetectRenames)
	if err != nil {
		return Requirement{}, err
	}

	req := Requirement{Kind: KindIncremental}
	for _, c := range changes {
		if matchesAny(c.Path, opts.IgnorePatterns) {
			continue
		}
		switch c.Status {
		case gitport.StatusAdded:
			req.FilesToAdd = append(req.FilesToAdd, c.Path)
		case gitport.StatusModified:
			req.FilesToUpdate = append(req.FilesToUpdate, c.Path)
		case gitport.StatusDeleted:
			req.FilesToDelete = append(req.FilesToDelete, c.Path)
		case gitport.StatusRenamed:
			// Rename treated as delete+add, simplifying the vector store
			// contract to two operations instead of three.
			req.FilesToDelete = append(req.FilesToDelete, c.Path)
			if !matchesAny(c.NewPath, opts.IgnorePatterns) {
				req.FilesToAdd = append(req.FilesToAdd, c.NewPath)
			}
		}
	}
	sort.Strings(req.FilesToAdd)
	sort.Strings(req.FilesToUpdate)
	sort.Strings(req.FilesToDelete)

	// Step 5: threshold-triggered full resync.
	changedCount := len(req.FilesToAdd) + len(req.FilesToUpdate) + len(req.FilesToDelete)
	tracked, err := repo.WalkTree(ctx, targetCommit)
	if err != nil {
		return Requirement{}, err
	}
	threshold := opts.FullSyncThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if len(tracked) > 0 && float64(changedCount)/float64(len(tracked)) > threshold {
		return Requirement{Kind: KindFull}, nil
	}

	// Step 6.
	return req, nil
}

// Force bypasses the pipeline and always requests a full resync, used
// after an explicit index clear.
func Force() Requirement {
	return Requirement{Kind: KindFull}
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// Package switcher implements the Branch Switcher: atomically
// moving a repository's working tree to a new branch and reconciling the
// sync index, modeled as an explicit state machine so every terminal
// failure mode names exactly what went wrong and what state the repository
// was left in.
package switcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/llamaha/sagitta-sub008/internal/gitsync/gitport"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/planner"
	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

// State names one node of the switch state machine.
type State string

const (
	StateIdle           State = "idle"
	StateCheckingClean  State = "checking_clean"
	StateStashing       State = "stashing"
	StateCheckout       State = "checkout"
	StatePlanSync       State = "plan_sync"
	StateIndexing       State = "indexing"
	StateUpdatingState  State = "updating_state"
	StateDone           State = "done"
	StateFailedDirty    State = "failed:uncommitted_changes"
	StateFailedCheckout State = "failed:checkout_failed"
	StateFailedSync     State = "failed:sync_failed"
)

// Options configures one switch.
type Options struct {
	Force         bool // allow switch with uncommitted changes; the forced checkout discards them, no stash is made
	AutoResync    bool // trigger a sync after a successful checkout
	SafetyStash   string // label logged when Force proceeds past uncommitted changes; no stash is created under it
	DetectRenames bool
}

// Result is the Switch Result value object.
type Result struct {
	Success           bool
	PreviousBranch    string
	NewBranch         string
	FinalState        State
	SyncRequirement   *planner.Requirement
	FilesChangedCount int
	Err               error
}

// Indexer performs the actual sync work once the Sync Planner has decided
// what's required; the Indexing Executor implements this.
type Indexer interface {
	Index(ctx context.Context, repo gitport.Repository, branch string, req planner.Requirement) (filesChanged int, err error)
}

// StateUpdater persists the new Repository State after a successful sync;
// the Sync Engine implements this against its own store.
type StateUpdater interface {
	UpdateLastIndexed(ctx context.Context, branch, commit string) error
	Load(ctx context.Context) (*planner.RepositoryState, error)
}

// Switch runs the full state machine for moving repo onto targetBranch.
func Switch(ctx context.Context, repo gitport.Repository, targetBranch string, indexer Indexer, states StateUpdater, opts Options) Result {
	previousBranch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return Result{FinalState: StateFailedCheckout, Err: fmt.Errorf("determine current branch: %w", err)}
	}

	logger := log.With().Str("component", "branch_switcher").Str("from", previousBranch).Str("to", targetBranch).Logger()
	logger.Info().Msg("switch started")

	// CheckingClean
	status, err := repo.Status(ctx)
	if err != nil {
		return Result{PreviousBranch: previousBranch, FinalState: StateFailedCheckout, Err: fmt.Errorf("check working tree status: %w", err)}
	}
	if !status.Clean {
		if !opts.Force {
			return Result{
				PreviousBranch: previousBranch,
				FinalState:     StateFailedDirty,
				Err:            fmt.Errorf("working tree has uncommitted changes: %w", sagerr.ErrConflict),
			}
		}
		// Forced switch: nothing is stashed or restored. Checkout(force=true)
		// discards the local changes, as ExecRepository's `git checkout
		// --force` does.
		logger.Info().Str("stash_label", opts.SafetyStash).Msg("discarding local changes for forced checkout")
	}

	// Checkout
	if err := repo.Checkout(ctx, targetBranch, opts.Force); err != nil {
		return Result{
			PreviousBranch: previousBranch,
			FinalState:     StateFailedCheckout,
			Err:            fmt.Errorf("checkout %s: %w", targetBranch, err),
		}
	}

	if !opts.AutoResync {
		return Result{
			Success:        true,
			PreviousBranch: previousBranch,
			NewBranch:      targetBranch,
			FinalState:     StateDone,
		}
	}

	// PlanSync
	state, err := states.Load(ctx)
	if err != nil {
		return Result{
			Success:        true, // checkout succeeded; sync planning failed
			PreviousBranch: previousBranch,
			NewBranch:      targetBranch,
			FinalState:     StateFailedSync,
			Err:            fmt.Errorf("load repository state: %w", err),
		}
	}
	req, err := planner.Plan(ctx, repo, targetBranch, state, planner.Options{DetectRenames: opts.DetectRenames})
	if err != nil {
		return Result{
			Success:        true,
			PreviousBranch: previousBranch,
			NewBranch:      targetBranch,
			FinalState:     StateFailedSync,
			Err:            fmt.Errorf("plan sync: %w", err),
		}
	}

	// Indexing
	filesChanged, err := indexer.Index(ctx, repo, targetBranch, req)
	if err != nil {
		// Checkout is retained; Repository State is not advanced, forcing a
		// retry on the next operation.
		return Result{
			Success:           true,
			PreviousBranch:    previousBranch,
			NewBranch:         targetBranch,
			SyncRequirement:   &req,
			FilesChangedCount: filesChanged,
			FinalState:        StateFailedSync,
			Err:               fmt.Errorf("index %s: %w", targetBranch, err),
		}
	}

	// UpdatingState
	commit, err := repo.CommitHash(ctx, targetBranch)
	if err != nil {
		return Result{
			Success:           true,
			PreviousBranch:    previousBranch,
			NewBranch:         targetBranch,
			SyncRequirement:   &req,
			FilesChangedCount: filesChanged,
			FinalState:        StateFailedSync,
			Err:               fmt.Errorf("resolve new commit: %w", err),
		}
	}
	if err := states.UpdateLastIndexed(ctx, targetBranch, commit); err != nil {
		return Result{
			Success:           true,
			PreviousBranch:    previousBranch,
			NewBranch:         targetBranch,
			SyncRequirement:   &req,
			FilesChangedCount: filesChanged,
			FinalState:        StateFailedSync,
			Err:               fmt.Errorf("update repository state: %w", err),
		}
	}

	logger.Info().Int("files_changed", filesChanged).Str("kind", string(req.Kind)).Msg("switch completed")
	return Result{
		Success:           true,
		PreviousBranch:    previousBranch,
		NewBranch:         targetBranch,
		SyncRequirement:   &req,
		FilesChangedCount: filesChanged,
		FinalState:        StateDone,
	}
}

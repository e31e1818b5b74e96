// Package statestore persists per-repository Repository State to
// disk, implementing switcher.StateUpdater against an on-disk layout of
// "<repo-cache>/state.json with last-indexed commit per branch and a
// merkle snapshot reference". Grounded on the Conversation Store's
// file-based persistence idiom (internal/conversation/store.go), adapted
// here to a
// single JSON record per repository rather than one-file-per-entity, since
// Repository State is a single small record rather than a growing
// collection.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/llamaha/sagitta-sub008/internal/gitsync/merkle"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/planner"
	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

// record is the on-disk shape of state.json.
type record struct {
	LastIndexedCommit map[string]string `json:"last_indexed_commit"`
	MerkleRoot        map[string]string `json:"merkle_root"` // branch -> root hash
}

// Store is a per-repository, file-backed implementation of
// switcher.StateUpdater; Repository State is write-synchronized
// per repository.
type Store struct {
	path string

	mu  sync.Mutex
	rec record
}

// Open loads (or initializes) the state file at <cacheDir>/state.json.
func Open(cacheDir string) (*Store, error) {
	s := &Store{path: filepath.Join(cacheDir, "state.json"), rec: record{
		LastIndexedCommit: map[string]string{},
		MerkleRoot:        map[string]string{},
	}}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating repo cache dir: %s: %w", err, sagerr.ErrIO)
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading repository state: %s: %w", err, sagerr.ErrIO)
	}
	if err := json.Unmarshal(raw, &s.rec); err != nil {
		return nil, fmt.Errorf("parsing repository state %s: %s: %w", s.path, err, sagerr.ErrSerialization)
	}
	if s.rec.LastIndexedCommit == nil {
		s.rec.LastIndexedCommit = map[string]string{}
	}
	if s.rec.MerkleRoot == nil {
		s.rec.MerkleRoot = map[string]string{}
	}
	return s, nil
}

// Load returns the planner-visible slice of state: last-indexed commit per
// branch.
func (s *Store) Load(ctx context.Context) (*planner.RepositoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(s.rec.LastIndexedCommit))
	for branch, commit := range s.rec.LastIndexedCommit {
		cp[branch] = commit
	}
	return &planner.RepositoryState{LastIndexedCommit: cp}, nil
}

// UpdateLastIndexed records a successful sync's resulting commit for branch
// and persists to disk. Repository State advances only on overall success.
func (s *Store) UpdateLastIndexed(ctx context.Context, branch, commit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.LastIndexedCommit[branch] = commit
	return s.persistLocked()
}

// UpdateMerkleRoot records the Merkle root computed for branch at its
// current commit, alongside the matching last-indexed commit.
func (s *Store) UpdateMerkleRoot(ctx context.Context, branch string, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.MerkleRoot[branch] = root
	return s.persistLocked()
}

// MerkleRootFor returns the last recorded Merkle root for branch, if any.
func (s *Store) MerkleRootFor(branch string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.rec.MerkleRoot[branch]
	return root, ok
}

func (s *Store) persistLocked() error {
	raw, err := json.MarshalIndent(s.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling repository state: %s: %w", err, sagerr.ErrSerialization)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("writing repository state %s: %s: %w", s.path, err, sagerr.ErrIO)
	}
	return nil
}

// RecomputeMerkleRoot is a convenience wrapper so callers that maintain a
// merkle.Cache alongside this Store don't need to import merkle themselves
// just to bridge the two.
func RecomputeMerkleRoot(cache *merkle.Cache) string {
	return cache.Root()
}

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

// Summary is the lightweight per-conversation entry kept in the Store's
// index for fast listing, grounded on the Rust original's
// ConversationSummary (used throughout tagging/clustering so full
// conversation bodies don't need to be loaded for those passes).
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	HasBranches bool     `json:"has_branches"`
	MessageCount int     `json:"message_count"`
}

func summarize(c Conversation) Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		Status:       c.Status,
		Tags:         append([]string{}, c.Tags...),
		CreatedAt:    c.CreatedAt,
		LastActive:   c.LastActive,
		HasBranches:  len(c.Branches) > 0,
		MessageCount: len(c.Messages),
	}
}

// Store is the file-based Conversation Store: one JSON file
// per conversation under RootDir/conversations, an index.json of
// Summaries for fast listing, and a RootDir/corrupted quarantine for
// files that fail to parse.
//
// Store is write-synchronized per conversation id via a striped mutex
// held for the duration of save/delete/archive/restore; concurrent reads
// of distinct conversations never block each other (the "single
// writer, multiple readers" rule), mirroring memChatStore's sync.RWMutex
// discipline but keyed per-record rather than store-wide.
type Store struct {
	rootDir string

	mu    sync.RWMutex // guards index
	index map[string]Summary

	recordMu sync.Map // id -> *sync.Mutex
}

// NewStore opens (and, if absent, creates) a file-based store rooted at
// dir and loads index.json; only when that file is absent or fails to
// parse is the index rebuilt from conversations/, quarantining any
// conversation file that fails to parse along the way.
func NewStore(dir string) (*Store, error) {
	s := &Store{rootDir: dir, index: map[string]Summary{}}
	if err := os.MkdirAll(s.conversationsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating conversations dir: %s: %w", err, sagerr.ErrIO)
	}
	if err := os.MkdirAll(s.corruptedDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating corrupted dir: %s: %w", err, sagerr.ErrIO)
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) conversationsDir() string { return filepath.Join(s.rootDir, "conversations") }
func (s *Store) corruptedDir() string     { return filepath.Join(s.rootDir, "corrupted") }
func (s *Store) indexPath() string        { return filepath.Join(s.rootDir, "index.json") }
func (s *Store) recordPath(id string) string {
	return filepath.Join(s.conversationsDir(), id+".json")
}
func (s *Store) quarantinePath(id string) string {
	return filepath.Join(s.corruptedDir(), id+".json.corrupted")
}

// loadIndex reads index.json if present; if it is absent or itself
// corrupt, the index is rebuilt from every surviving (parseable) file
// under conversations/, per the "a corrupted index is replaced
// with a rebuilt one from surviving files".
func (s *Store) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath())
	if err == nil {
		var idx map[string]Summary
		if jsonErr := json.Unmarshal(raw, &idx); jsonErr == nil {
			s.mu.Lock()
			s.index = idx
			s.mu.Unlock()
			return nil
		}
		log.Warn().Str("path", s.indexPath()).Msg("conversation index corrupted, rebuilding from conversation files")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading conversation index: %s: %w", err, sagerr.ErrIO)
	}
	return s.rebuildIndex()
}

func (s *Store) rebuildIndex() error {
	entries, err := os.ReadDir(s.conversationsDir())
	if err != nil {
		return fmt.Errorf("reading conversations dir: %s: %w", err, sagerr.ErrIO)
	}

	rebuilt := map[string]Summary{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		conv, ok, err := s.readRecord(id)
		if err != nil {
			return err
		}
		if !ok {
			continue // quarantined by readRecord
		}
		rebuilt[id] = summarize(conv)
	}

	s.mu.Lock()
	s.index = rebuilt
	s.mu.Unlock()
	return s.persistIndex()
}

func (s *Store) persistIndex() error {
	s.mu.RLock()
	raw, err := json.MarshalIndent(s.index, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling conversation index: %s: %w", err, sagerr.ErrSerialization)
	}
	if err := os.WriteFile(s.indexPath(), raw, 0o644); err != nil {
		return fmt.Errorf("writing conversation index: %s: %w", err, sagerr.ErrIO)
	}
	return nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	actual, _ := s.recordMu.LoadOrStore(id, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Save writes c to disk and updates the index, overwriting any existing
// record for c.ID.
func (s *Store) Save(ctx context.Context, c Conversation) error {
	lock := s.lockFor(c.ID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation %s: %s: %w", c.ID, err, sagerr.ErrSerialization)
	}
	if err := os.WriteFile(s.recordPath(c.ID), raw, 0o644); err != nil {
		return fmt.Errorf("writing conversation %s: %s: %w", c.ID, err, sagerr.ErrIO)
	}

	s.mu.Lock()
	s.index[c.ID] = summarize(c)
	s.mu.Unlock()
	return s.persistIndex()
}

// Load reads the conversation with the given id. A corrupted file is
// quarantined and Load returns (Conversation{}, false, nil) rather than
// an error, per the corruption recovery contract.
func (s *Store) Load(ctx context.Context, id string) (Conversation, bool, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readRecord(id)
}

// readRecord does the actual read+parse, quarantining on parse failure.
// It does not take the per-record lock itself so rebuildIndex can call it
// while already holding the relevant invariants (there is no concurrent
// writer during index rebuild, which only runs from NewStore).
func (s *Store) readRecord(id string) (Conversation, bool, error) {
	path := s.recordPath(id)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Conversation{}, false, nil
		}
		return Conversation{}, false, fmt.Errorf("reading conversation %s: %s: %w", id, err, sagerr.ErrIO)
	}

	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("conversation file corrupted, quarantining")
		if qErr := s.quarantine(id, raw); qErr != nil {
			return Conversation{}, false, qErr
		}
		return Conversation{}, false, nil
	}
	return conv, true, nil
}

func (s *Store) quarantine(id string, raw []byte) error {
	if err := os.WriteFile(s.quarantinePath(id), raw, 0o644); err != nil {
		return fmt.Errorf("quarantining conversation %s: %s: %w", id, err, sagerr.ErrIO)
	}
	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing corrupted conversation %s: %s: %w", id, err, sagerr.ErrIO)
	}
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
	return nil
}

// Delete removes a conversation's record and index entry entirely.
func (s *Store) Delete(ctx context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting conversation %s: %s: %w", id, err, sagerr.ErrIO)
	}
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
	return s.persistIndex()
}

// Archive sets a conversation's status to Archived and persists it.
func (s *Store) Archive(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusArchived)
}

// Restore sets an archived conversation's status back to Active.
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusActive)
}

func (s *Store) setStatus(ctx context.Context, id string, status Status) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	conv, ok, err := s.readRecord(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, sagerr.ErrNotFound)
	}
	conv.Status = status
	conv.LastActive = time.Now()

	raw, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation %s: %s: %w", id, err, sagerr.ErrSerialization)
	}
	if err := os.WriteFile(s.recordPath(id), raw, 0o644); err != nil {
		return fmt.Errorf("writing conversation %s: %s: %w", id, err, sagerr.ErrIO)
	}
	s.mu.Lock()
	s.index[id] = summarize(conv)
	s.mu.Unlock()
	return s.persistIndex()
}

// ListIDs returns every conversation id currently in the index, sorted
// for deterministic output; quarantined conversations are excluded
// because they are removed from the index at quarantine time.
func (s *Store) ListIDs(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summaries returns every Summary in the index, sorted by LastActive
// descending (most recently active first).
func (s *Store) Summaries(ctx context.Context) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.index))
	for _, summary := range s.index {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out
}

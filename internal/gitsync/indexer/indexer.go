// Package indexer implements the Indexing Executor: consuming a
// Sync Requirement and reconciling the vector store to match.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/llamaha/sagitta-sub008/internal/embedding"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/codeparser"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/gitport"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/planner"
	"github.com/llamaha/sagitta-sub008/internal/sagerr"
	"github.com/llamaha/sagitta-sub008/internal/vectorstore"
)

// Options configures one indexing run.
type Options struct {
	Repo            string // repository identifier used in point metadata
	Branch          string
	IgnorePatterns  []string
	BatchSize       int     // default 64
	MaxFailureRatio float64 // default 0.05
	MaxWorkers      int     // bounds concurrent embed-batch calls; <=0 means unbounded
}

// Executor reconciles a vectorstore.Store against a planner.Requirement.
type Executor struct {
	Parser   codeparser.Parser
	Embedder embedding.Embedder
	Store    vectorstore.Store
}

// New returns an Executor wired to the given ports, defaulting Parser to a
// SimpleParser when nil.
func New(parser codeparser.Parser, embedder embedding.Embedder, store vectorstore.Store) *Executor {
	if parser == nil {
		parser = codeparser.NewSimpleParser()
	}
	return &Executor{Parser: parser, Embedder: embedder, Store: store}
}

// Run executes req against repo, returning the number of files successfully
// processed. Failure policy: per-file errors are logged and
// counted; the run completes and reports success iff the failed fraction is
// below opts.MaxFailureRatio. Repository State advances only when Run
// returns a nil error.
func (e *Executor) Run(ctx context.Context, repo gitport.Repository, req planner.Requirement, opts Options) (filesProcessed int, err error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	maxFailureRatio := opts.MaxFailureRatio
	if maxFailureRatio <= 0 {
		maxFailureRatio = 0.05
	}

	logger := log.With().Str("component", "indexing_executor").Str("repo", opts.Repo).Str("branch", opts.Branch).Str("kind", string(req.Kind)).Logger()

	switch req.Kind {
	case planner.KindNone:
		return 0, nil
	case planner.KindFull:
		return e.runFull(ctx, repo, opts, batchSize, maxFailureRatio, logger)
	case planner.KindIncremental:
		return e.runIncremental(ctx, repo, req, opts, batchSize, maxFailureRatio, logger)
	default:
		return 0, fmt.Errorf("unknown sync requirement kind %q: %w", req.Kind, sagerr.ErrInvalidParameter)
	}
}

func (e *Executor) runFull(ctx context.Context, repo gitport.Repository, opts Options, batchSize int, maxFailureRatio float64, logger zerolog.Logger) (int, error) {
	commit, err := repo.CommitHash(ctx, opts.Branch)
	if err != nil {
		return 0, fmt.Errorf("resolve branch %s: %w", opts.Branch, err)
	}
	entries, err := repo.WalkTree(ctx, commit)
	if err != nil {
		return 0, fmt.Errorf("walk tree: %w", err)
	}

	var paths []string
	currentSet := map[string]bool{}
	for _, entry := range entries {
		if matchesAny(entry.Path, opts.IgnorePatterns) {
			continue
		}
		paths = append(paths, entry.Path)
		currentSet[entry.Path] = true
	}

	processed, failed := e.embedAndUpsertFiles(ctx, repo, paths, opts, batchSize, logger)
	if err := checkFailureRatio(failed, len(paths), maxFailureRatio); err != nil {
		return processed, err
	}

	// Delete any indexed point whose path is no longer in the current tree:
	// a Full sync prunes the collection down to exactly the current set.
	indexed, err := e.Store.ListByMetadata(ctx, map[string]string{"repo": opts.Repo, "branch": opts.Branch})
	if err != nil {
		return processed, fmt.Errorf("list indexed points: %w", err)
	}
	stalePathSet := map[string]bool{}
	for _, pt := range indexed {
		if path := pt.Metadata["path"]; path != "" && !currentSet[path] {
			stalePathSet[path] = true
		}
	}
	for path := range stalePathSet {
		if err := e.Store.DeleteByMetadata(ctx, map[string]string{"repo": opts.Repo, "branch": opts.Branch, "path": path}); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("prune stale path failed")
		}
	}

	logger.Info().Int("files", len(paths)).Int("failed", failed).Int("pruned", len(stalePathSet)).Msg("full sync complete")
	return processed, nil
}

func (e *Executor) runIncremental(ctx context.Context, repo gitport.Repository, req planner.Requirement, opts Options, batchSize int, maxFailureRatio float64, logger zerolog.Logger) (int, error) {
	toEmbed := append(append([]string{}, req.FilesToAdd...), req.FilesToUpdate...)
	total := len(toEmbed) + len(req.FilesToDelete)

	processed, failed := e.embedAndUpsertFiles(ctx, repo, toEmbed, opts, batchSize, logger)

	for _, path := range req.FilesToDelete {
		if err := e.Store.DeleteByMetadata(ctx, map[string]string{"repo": opts.Repo, "branch": opts.Branch, "path": path}); err != nil {
			failed++
			logger.Error().Err(err).Str("path", path).Msg("delete failed")
			continue
		}
		processed++
	}

	if err := checkFailureRatio(failed, total, maxFailureRatio); err != nil {
		return processed, err
	}
	logger.Info().Int("added", len(req.FilesToAdd)).Int("updated", len(req.FilesToUpdate)).Int("deleted", len(req.FilesToDelete)).Int("failed", failed).Msg("incremental sync complete")
	return processed, nil
}

// embedAndUpsertFiles parses every path, then embeds and upserts the
// resulting chunks in opts.BatchSize batches, running up to opts.MaxWorkers
// batches concurrently (bounded parallel fan-out, mirroring
// agent.Engine.dispatchTools's errgroup usage). Returns how many files
// succeeded and how many failed. Per-file and per-batch failures are
// logged and counted, never aborting the run.
type pendingChunk struct {
	path  string
	chunk codeparser.Chunk
}

func (e *Executor) embedAndUpsertFiles(ctx context.Context, repo gitport.Repository, paths []string, opts Options, batchSize int, logger zerolog.Logger) (processed, failed int) {
	var pending []pendingChunk
	failedPaths := map[string]bool{}

	for _, path := range paths {
		content, err := repo.ReadFile(ctx, path)
		if err != nil {
			failedPaths[path] = true
			logger.Error().Err(err).Str("path", path).Msg("read file failed")
			continue
		}
		chunks, err := e.Parser.Parse(path, content)
		if err != nil {
			failedPaths[path] = true
			logger.Error().Err(err).Str("path", path).Msg("parse failed")
			continue
		}
		for _, c := range chunks {
			pending = append(pending, pendingChunk{path: path, chunk: c})
		}
	}

	var batches [][]pendingChunk
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batches = append(batches, pending[start:end])
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 || maxWorkers > len(batches) {
		maxWorkers = len(batches)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			e.embedAndUpsertBatch(gctx, batch, opts, logger, &mu, failedPaths)
			return nil
		})
	}
	_ = g.Wait()

	failed = len(failedPaths)
	processed = len(paths) - failed
	return processed, failed
}

func (e *Executor) embedAndUpsertBatch(ctx context.Context, batch []pendingChunk, opts Options, logger zerolog.Logger, mu *sync.Mutex, failedPaths map[string]bool) {
	if len(batch) == 0 {
		return
	}
	texts := make([]string, len(batch))
	for i, b := range batch {
		texts[i] = b.chunk.Content
	}
	vectors, err := e.Embedder.Embed(ctx, texts)
	if err != nil {
		markFailed(mu, failedPaths, batch)
		logger.Error().Err(err).Int("batch_size", len(batch)).Msg("embed batch failed")
		return
	}
	points := make([]vectorstore.Point, len(batch))
	for i, b := range batch {
		points[i] = vectorstore.Point{
			ID:     opts.Repo + ":" + opts.Branch + ":" + codeparser.DebugKey(b.path, b.chunk),
			Vector: vectors[i],
			Metadata: map[string]string{
				"repo":         opts.Repo,
				"branch":       opts.Branch,
				"path":         b.path,
				"language":     b.chunk.Language,
				"element_type": string(b.chunk.ElementType),
			},
		}
	}
	if err := e.Store.Upsert(ctx, points); err != nil {
		markFailed(mu, failedPaths, batch)
		logger.Error().Err(err).Msg("upsert batch failed")
	}
}

func markFailed(mu *sync.Mutex, failedPaths map[string]bool, batch []pendingChunk) {
	mu.Lock()
	defer mu.Unlock()
	for _, b := range batch {
		failedPaths[b.path] = true
	}
}

func checkFailureRatio(failed, total int, maxRatio float64) error {
	if total == 0 {
		return nil
	}
	if float64(failed)/float64(total) >= maxRatio {
		return fmt.Errorf("indexing failed for %d/%d files (max failure ratio %.2f exceeded): %w", failed, total, maxRatio, sagerr.ErrIO)
	}
	return nil
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

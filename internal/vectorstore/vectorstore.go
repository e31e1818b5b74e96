// Package vectorstore is the Vector Store Port: the narrow surface the
// Indexing Executor and retrieval paths need from a vector database,
// grounded on manifold/internal/persistence/databases.VectorStore.
package vectorstore

import "context"

// Point is one embedded chunk plus the metadata needed to explain or
// invalidate a match (repo/branch/path/element type/line range).
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Result is one similarity search hit.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Store is the Vector Store Port.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, ids []string) error
	// DeleteByMetadata removes every point whose metadata matches all of
	// filter's key/value pairs, used by the Indexing Executor's Full-sync
	// prune step ("delete any points whose path is not in the current set").
	DeleteByMetadata(ctx context.Context, filter map[string]string) error
	// ListByMetadata returns every point matching all of filter's key/value
	// pairs (vectors omitted), used by the Indexing Executor to discover
	// which indexed paths no longer exist in the current tree.
	ListByMetadata(ctx context.Context, filter map[string]string) ([]Point, error)
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)
	Dimension() int
	Close() error
}

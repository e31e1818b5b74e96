// Package embedding is the Embedding Port: translating text into vectors
// for the Indexing Executor and retrieval paths, grounded on
// manifold/internal/embedding.EmbedText.
package embedding

import "context"

// Embedder is the Embedding Port.
type Embedder interface {
	// Embed returns one vector per input string, in the same order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Dimensions() int
}

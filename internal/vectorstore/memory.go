package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store, used for the "memory" backend and in
// tests standing in for Qdrant.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]Point
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, points: map[string]Point{}}
}

func (m *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		stored := Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...), Metadata: map[string]string{}}
		for k, v := range p.Metadata {
			stored.Metadata[k] = v
		}
		m.points[p.ID] = stored
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryStore) DeleteByMetadata(ctx context.Context, filter map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matchesFilter(p.Metadata, filter) {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryStore) ListByMetadata(ctx context.Context, filter map[string]string) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Point
	for _, p := range m.points {
		if matchesFilter(p.Metadata, filter) {
			out = append(out, Point{ID: p.ID, Metadata: p.Metadata})
		}
	}
	return out, nil
}

func (m *MemoryStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	var results []Result
	for _, p := range m.points {
		if !matchesFilter(p.Metadata, filter) {
			continue
		}
		results = append(results, Result{ID: p.ID, Score: cosineSimilarity(vector, p.Vector), Metadata: p.Metadata})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryStore) Dimension() int { return m.dimension }

func (m *MemoryStore) Close() error { return nil }

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Package vectorstore provides the pluggable nearest-neighbor backend
// behind both the session RAG and knowledge-base RAG indexes: an in-memory
// cosine-similarity default, or an optional Qdrant-backed store.
package vectorstore

import "context"

// Result is a single nearest-neighbor hit.
type Result struct {
	ID       string
	Score    float64 // higher is closer
	Metadata map[string]string
}

// Store is the minimum interface a vector backend must satisfy.
type Store interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)
}

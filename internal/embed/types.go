// Package embed defines the Embedder/Reranker boundary spec.md §4.3 and
// §6.2 treat as an external, black-box capability, plus a deterministic
// hash-based implementation used for tests and offline development.
package embed

import (
	"context"
	"math"
)

// Dimensions is the fixed embedding width every Embedder in this module
// must produce, per spec.md §6.2.
const Dimensions = 1024

// Embedder turns text into unit-norm vectors. embed_query and
// embed_document may apply different task-specific prefixes internally;
// callers must not mix them. An Embedder is single-owner — callers
// serialize access via an exclusive lock rather than relying on internal
// synchronization.
type Embedder interface {
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocument embeds a chunk of indexed content.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// ID is a stable identifier recorded as meta.embedder_id; Store.Open
	// uses it to detect an incompatible index.
	ID() string

	// Close releases any loaded model resources.
	Close() error
}

// Reranker cross-encodes a query against a batch of documents and scores
// each; callers take the first top_n entries from the returned order. A
// Reranker is single-owner, same as Embedder.
type Reranker interface {
	// Score returns (index into docs, score) pairs sorted by descending
	// score. Scores are not calibrated across queries.
	Score(ctx context.Context, query string, docs []string) ([]ScoredDoc, error)

	Close() error
}

// ScoredDoc pairs a document's position in the input slice with its
// rerank score.
type ScoredDoc struct {
	Index int
	Score float32
}

// normalizeVector scales v to unit L2 norm. A zero vector is returned
// unchanged — callers are expected never to embed empty, all-stop-word
// text down to nothing, but this keeps the function total.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

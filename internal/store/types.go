// Package store persists chunks and their embeddings in a project-scoped
// SQLite database, using the vec0 virtual table for nearest-neighbor
// search over L2-normalized vectors.
package store

import "context"

// ChunkRecord is one row destined for the chunks table, paired with the
// embedding that goes into chunks_vec under the same rowid.
type ChunkRecord struct {
	FilePath   string
	Ordinal    int
	Kind       string
	ParentName string // "" stored as NULL
	StartLine  int
	EndLine    int
	Text       string
	Hash       uint64
}

// ChunkRef is a chunk returned from a similarity search, carrying its
// distance to the query vector.
type ChunkRef struct {
	ID         int64
	FilePath   string
	Ordinal    int
	Kind       string
	ParentName string
	StartLine  int
	EndLine    int
	Text       string
	Distance   float32
}

// Stats summarizes the current contents of a Store.
type Stats struct {
	ChunkCount int
	FileCount  int
	Dim        int
}

// Store is the persistence contract spec.md §4.2 describes: a relational
// table of chunks plus a vector index bound to it by rowid.
type Store interface {
	// InsertChunk atomically inserts a chunk row and its embedding. It
	// fails with errkit.UniqueViolation if (file_path, ordinal) collides.
	InsertChunk(ctx context.Context, rec ChunkRecord, embedding []float32) (int64, error)

	// DeleteFile removes every chunk (and embedding) recorded for path,
	// returning the number of chunks deleted.
	DeleteFile(ctx context.Context, path string) (int, error)

	// FetchEmbeddingsByFile returns a hash-to-embedding snapshot for path,
	// used by the Indexer to reuse vectors across a per-file rewrite.
	FetchEmbeddingsByFile(ctx context.Context, path string) (map[uint64][]float32, error)

	// Search returns the k nearest chunks to queryVec, ordered by
	// ascending cosine distance with ties broken by ascending id.
	Search(ctx context.Context, queryVec []float32, k int) ([]ChunkRef, error)

	// Stats reports chunk/file counts and the configured embedding
	// dimension.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

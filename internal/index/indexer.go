// Package index implements the Indexer spec.md §4.4 describes: a full
// workspace walk that populates an empty Store, and an incremental
// per-file reindex that keeps it current as files change. Both are
// transactionally per-file — a failure on one file never corrupts or
// loses chunks already committed for another.
//
// The Indexer holds no lock of its own; spec.md §5 places the
// exclusive/shared state lock one layer up, in the Server, so that it
// covers the Embedder and Store together rather than the Indexer alone.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"ragrep/internal/chunk"
	"ragrep/internal/embed"
	"ragrep/internal/errkit"
	"ragrep/internal/scanner"
	"ragrep/internal/store"
)

// fullIndexConcurrency bounds how many files FullIndex chunks and embeds
// at once. Store writes (SQLite) and the Embedder's own lock (when run
// behind the daemon's State) still serialize underneath this, so the
// limit exists only to overlap file I/O and chunking, not to parallelize
// the store itself.
const fullIndexConcurrency = 8

// languageByExt mirrors the closed {rs, py, js, ts} set spec.md §3 fixes.
// Kept local to this package rather than exported from internal/chunk, so
// the Indexer doesn't need a second entry point into the language
// registry just to recover the name Chunker.Chunk expects.
var languageByExt = map[string]string{
	".rs": "rust",
	".py": "python",
	".js": "javascript",
	".ts": "typescript",
}

// Stats summarizes one full-index pass.
type Stats struct {
	FilesIndexed int
	FilesSkipped int
	Chunks       int
}

// ReindexStats summarizes one incremental reindex pass over a batch of
// paths, per spec.md §4.4's "count reused vs. recomputed for the event
// log".
type ReindexStats struct {
	FilesReindexed int
	FilesDeleted   int
	FilesFailed    int
	ChunksReused   int
	ChunksRecomputed int
}

// Indexer wires a Scanner, Chunker, Embedder and Store into the full-index
// and incremental-reindex algorithms.
type Indexer struct {
	root     string
	scanner  *scanner.Scanner
	chunker  chunk.Chunker
	embedder embed.Embedder
	store    store.Store
	logger   *slog.Logger
}

// New builds an Indexer rooted at root.
func New(root string, sc *scanner.Scanner, chunker chunk.Chunker, embedder embed.Embedder, st store.Store) *Indexer {
	return &Indexer{
		root:     root,
		scanner:  sc,
		chunker:  chunker,
		embedder: embedder,
		store:    st,
		logger:   slog.Default(),
	}
}

// WithLogger swaps the logger used for per-file skip/failure events.
func (ix *Indexer) WithLogger(logger *slog.Logger) *Indexer {
	ix.logger = logger
	return ix
}

// FullIndex walks the workspace (via Scanner, which already applies the
// merged ignore rules and closed extension set) and indexes every file it
// finds, up to fullIndexConcurrency files at once. A file that fails to
// chunk, embed, or insert is skipped and logged; files already committed
// are untouched. Each file is still all-or-nothing (see indexFile's
// rollback), so running files concurrently never produces a partially
// visible file.
func (ix *Indexer) FullIndex(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		mu    sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fullIndexConcurrency)

	for result := range ix.scanner.Scan(ctx) {
		if gctx.Err() != nil {
			break
		}

		if result.Err != nil {
			ix.logger.Warn("scan error, skipping", "error", result.Err)
			mu.Lock()
			stats.FilesSkipped++
			mu.Unlock()
			continue
		}

		path, absPath := result.File.Path, result.File.AbsPath
		g.Go(func() error {
			n, err := ix.indexFile(gctx, path, absPath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ix.logger.Warn("failed to index file, skipping", "path", path, "error", err)
				stats.FilesSkipped++
				return nil
			}
			stats.FilesIndexed++
			stats.Chunks += n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

// indexFile chunks, embeds and inserts one file. On any failure partway
// through, it deletes whatever it had already committed for this path so
// the file's net effect on the store is all-or-nothing.
func (ix *Indexer) indexFile(ctx context.Context, relPath, absPath string) (int, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "read %s", relPath)
	}

	lang, ok := languageByExt[filepath.Ext(relPath)]
	if !ok {
		return 0, nil
	}

	chunks, err := ix.chunker.Chunk(ctx, &chunk.FileInput{Path: relPath, Content: content, Language: lang})
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, c := range chunks {
		vec, err := ix.embedder.EmbedDocument(ctx, c.Text)
		if err != nil {
			ix.rollback(ctx, relPath)
			return 0, errkit.Wrap(errkit.Internal, err, "embed chunk %d of %s", c.Ordinal, relPath)
		}
		if _, err := ix.store.InsertChunk(ctx, toRecord(c), vec); err != nil {
			ix.rollback(ctx, relPath)
			return 0, err
		}
		inserted++
	}

	return inserted, nil
}

func (ix *Indexer) rollback(ctx context.Context, relPath string) {
	if _, err := ix.store.DeleteFile(ctx, relPath); err != nil {
		ix.logger.Warn("failed to roll back partial index of file", "path", relPath, "error", err)
	}
}

// ReindexFiles applies the incremental per-file reindex algorithm to each
// path in order, per spec.md §4.4: fetch the file's cached embeddings,
// delete its chunks, and if the file still exists re-chunk it, reusing
// cached vectors by content hash and only recomputing for genuinely new
// or changed spans.
func (ix *Indexer) ReindexFiles(ctx context.Context, paths []string) ReindexStats {
	var stats ReindexStats

	for _, p := range paths {
		select {
		case <-ctx.Done():
			return stats
		default:
		}

		deleted, reused, recomputed, err := ix.reindexFile(ctx, p)
		if err != nil {
			ix.logger.Warn("failed to reindex file", "path", p, "error", err)
			stats.FilesFailed++
			continue
		}
		if deleted {
			stats.FilesDeleted++
		} else {
			stats.FilesReindexed++
		}
		stats.ChunksReused += reused
		stats.ChunksRecomputed += recomputed
	}

	return stats
}

// reindexFile runs one path through the "delete-then-insert with cache"
// algorithm. deleted reports whether the file no longer exists on disk
// (a pure deletion, step 3 of §4.4).
func (ix *Indexer) reindexFile(ctx context.Context, relPath string) (deleted bool, reused, recomputed int, err error) {
	cache, err := ix.store.FetchEmbeddingsByFile(ctx, relPath)
	if err != nil {
		return false, 0, 0, err
	}

	if _, err := ix.store.DeleteFile(ctx, relPath); err != nil {
		return false, 0, 0, err
	}

	absPath := filepath.Join(ix.root, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, 0, 0, nil
		}
		return false, 0, 0, errkit.Wrap(errkit.IoError, err, "read %s", relPath)
	}

	lang, ok := languageByExt[filepath.Ext(relPath)]
	if !ok {
		return false, 0, 0, nil
	}

	chunks, err := ix.chunker.Chunk(ctx, &chunk.FileInput{Path: relPath, Content: content, Language: lang})
	if err != nil {
		return false, 0, 0, err
	}

	for _, c := range chunks {
		vec, ok := cache[c.Hash]
		if ok {
			reused++
		} else {
			vec, err = ix.embedder.EmbedDocument(ctx, c.Text)
			if err != nil {
				ix.rollback(ctx, relPath)
				return false, reused, recomputed, errkit.Wrap(errkit.Internal, err, "embed chunk %d of %s", c.Ordinal, relPath)
			}
			recomputed++
		}
		if _, err := ix.store.InsertChunk(ctx, toRecord(c), vec); err != nil {
			ix.rollback(ctx, relPath)
			return false, reused, recomputed, err
		}
	}

	return false, reused, recomputed, nil
}

func toRecord(c *chunk.Chunk) store.ChunkRecord {
	return store.ChunkRecord{
		FilePath:   c.FilePath,
		Ordinal:    c.Ordinal,
		Kind:       string(c.Kind),
		ParentName: c.ParentName,
		StartLine:  c.StartLine,
		EndLine:    c.EndLine,
		Text:       c.Text,
		Hash:       c.Hash,
	}
}

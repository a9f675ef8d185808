package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"

	"ragrep/internal/errkit"
)

func init() {
	sqlitevec.Auto()
}

const schemaVersion = "1"

const (
	metaKeySchemaVersion = "schema_version"
	metaKeyEmbedderID    = "embedder_id"
)

// SQLiteStore implements Store over a SQLite database with the vec0
// extension for nearest-neighbor search.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// Open opens (creating if absent) the database at path, verifying it was
// built with embedderID. A database with no recorded embedder id gets the
// schema version and embedderID written to meta; a recorded embedder id
// or schema version that differs fails with errkit.IncompatibleIndex, and
// the caller's only recourse is to recreate the store.
func Open(ctx context.Context, path string, embedderID string, dim int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "open store %s", path)
	}

	if err := initSchema(db, dim); err != nil {
		db.Close()
		return nil, errkit.Wrap(errkit.IoError, err, "init schema")
	}

	s := &SQLiteStore{db: db, dim: dim}
	if err := s.checkOrWriteMeta(ctx, embedderID); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) checkOrWriteMeta(ctx context.Context, embedderID string) error {
	existing, err := s.getMeta(ctx, metaKeyEmbedderID)
	if err != nil {
		return errkit.Wrap(errkit.IoError, err, "read meta")
	}
	if existing == "" {
		if err := s.setMeta(ctx, metaKeySchemaVersion, schemaVersion); err != nil {
			return errkit.Wrap(errkit.IoError, err, "write meta")
		}
		return s.setMeta(ctx, metaKeyEmbedderID, embedderID)
	}
	if existing != embedderID {
		return errkit.New(errkit.IncompatibleIndex, "store was built with embedder %q, got %q", existing, embedderID)
	}
	version, err := s.getMeta(ctx, metaKeySchemaVersion)
	if err != nil {
		return errkit.Wrap(errkit.IoError, err, "read meta")
	}
	if version != schemaVersion {
		return errkit.New(errkit.IncompatibleIndex, "store schema version %q, expected %q", version, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// InsertChunk implements Store.
func (s *SQLiteStore) InsertChunk(ctx context.Context, rec ChunkRecord, embedding []float32) (int64, error) {
	if len(embedding) != s.dim {
		return 0, errkit.New(errkit.Internal, "embedding has dimension %d, store expects %d", len(embedding), s.dim)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "begin transaction")
	}
	defer tx.Rollback()

	parentName := sql.NullString{String: rec.ParentName, Valid: rec.ParentName != ""}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (file_path, ordinal, kind, parent_name, start_line, end_line, text, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FilePath, rec.Ordinal, rec.Kind, parentName, rec.StartLine, rec.EndLine, rec.Text, int64(rec.Hash))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errkit.Wrap(errkit.UniqueViolation, err, "chunk (%s, %d) already indexed", rec.FilePath, rec.Ordinal)
		}
		return 0, errkit.Wrap(errkit.IoError, err, "insert chunk")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "read chunk id")
	}

	blob, err := sqlitevec.SerializeFloat32(embedding)
	if err != nil {
		return 0, errkit.Wrap(errkit.Internal, err, "serialize embedding")
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO chunks_vec (rowid, embedding) VALUES (?, ?)", id, blob); err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "insert embedding")
	}

	if err := tx.Commit(); err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "commit chunk insert")
	}
	return id, nil
}

// DeleteFile implements Store.
func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "begin transaction")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE file_path = ?", path)
	if err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "list chunks for %s", path)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errkit.Wrap(errkit.IoError, err, "scan chunk id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "iterate chunks for %s", path)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_vec WHERE rowid = ?", id); err != nil {
			return 0, errkit.Wrap(errkit.IoError, err, "delete embedding %d", id)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_path = ?", path); err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "delete chunks for %s", path)
	}

	if err := tx.Commit(); err != nil {
		return 0, errkit.Wrap(errkit.IoError, err, "commit file delete")
	}
	return len(ids), nil
}

// FetchEmbeddingsByFile implements Store.
func (s *SQLiteStore) FetchEmbeddingsByFile(ctx context.Context, path string) (map[uint64][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.hash, v.embedding
		 FROM chunks c JOIN chunks_vec v ON v.rowid = c.id
		 WHERE c.file_path = ?`, path)
	if err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "fetch embeddings for %s", path)
	}
	defer rows.Close()

	cache := make(map[uint64][]float32)
	for rows.Next() {
		var hash int64
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, errkit.Wrap(errkit.IoError, err, "scan embedding row")
		}
		vec, err := deserializeFloat32(blob)
		if err != nil {
			return nil, errkit.Wrap(errkit.Internal, err, "deserialize embedding")
		}
		cache[uint64(hash)] = vec
	}
	return cache, rows.Err()
}

// Search implements Store, returning the k nearest chunks by ascending
// cosine distance with ties broken by ascending id.
func (s *SQLiteStore) Search(ctx context.Context, queryVec []float32, k int) ([]ChunkRef, error) {
	if len(queryVec) != s.dim {
		return nil, errkit.New(errkit.Internal, "query embedding has dimension %d, store expects %d", len(queryVec), s.dim)
	}
	blob, err := sqlitevec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, errkit.Wrap(errkit.Internal, err, "serialize query embedding")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_path, c.ordinal, c.kind, c.parent_name, c.start_line, c.end_line, c.text, v.distance
		FROM chunks_vec v
		JOIN chunks c ON c.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance ASC, c.id ASC
	`, blob, k)
	if err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "search")
	}
	defer rows.Close()

	var refs []ChunkRef
	for rows.Next() {
		var ref ChunkRef
		var parentName sql.NullString
		if err := rows.Scan(&ref.ID, &ref.FilePath, &ref.Ordinal, &ref.Kind, &parentName,
			&ref.StartLine, &ref.EndLine, &ref.Text, &ref.Distance); err != nil {
			return nil, errkit.Wrap(errkit.IoError, err, "scan search result")
		}
		ref.ParentName = parentName.String
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	stats.Dim = s.dim
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.ChunkCount); err != nil {
		return Stats{}, errkit.Wrap(errkit.IoError, err, "count chunks")
	}
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT file_path) FROM chunks").Scan(&stats.FileCount)
	if err != nil {
		return Stats{}, errkit.Wrap(errkit.IoError, err, "count files")
	}
	return stats, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

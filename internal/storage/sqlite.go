package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// SQLiteStore keeps every index in one SQLite database file.
// It implements the same contract as FileStore and ranks vectors in the
// database when the vector extension is compiled in.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	batchSize int
	logger    *zap.Logger
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string, batchSize int, logger *zap.Logger) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, path: dbPath, batchSize: batchSize, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStore) getMetadata(ctx context.Context, q querier, index string) (*types.IndexMetadata, error) {
	var meta types.IndexMetadata
	err := q.QueryRowContext(ctx, `
		SELECT name, dimension, metric, chunk_count, batch_count, batch_size,
		       format_version, provider, model, created_at, updated_at
		FROM indexes WHERE name = ?`, index).Scan(
		&meta.Name, &meta.Dimension, &meta.Metric, &meta.ChunkCount, &meta.BatchCount, &meta.BatchSize,
		&meta.FormatVersion, &meta.Provider, &meta.Model, &meta.CreatedAt, &meta.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index %s: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index %s: %w", index, err)
	}
	meta.StorageRoot = s.path
	return &meta, nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, index string) (*Location, error) {
	if err := ValidateIndexName(index); err != nil {
		return nil, err
	}
	meta, err := s.getMetadata(ctx, s.db, index)
	if err != nil {
		return nil, err
	}
	if err := checkFormat(meta); err != nil {
		return nil, err
	}
	return &Location{
		Index:    index,
		Root:     s.path,
		Dir:      s.path,
		Source:   "sqlite",
		Metadata: *meta,
	}, nil
}

func (s *SQLiteStore) Persist(ctx context.Context, index string, chunks []types.EmbeddedChunk, opts ...PersistOption) (*types.IndexMetadata, error) {
	if err := ValidateIndexName(index); err != nil {
		return nil, err
	}
	dim, err := checkChunks(chunks)
	if err != nil {
		return nil, err
	}
	pc := newPersistConfig(opts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	meta, err := s.getMetadata(ctx, tx, index)
	switch {
	case errors.Is(err, ErrNotFound):
		meta = &types.IndexMetadata{
			Name:          index,
			Metric:        types.MetricCosine,
			FormatVersion: FormatVersion,
			BatchSize:     s.batchSize,
			CreatedAt:     now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO indexes (name, dimension, metric, batch_size, format_version, created_at, updated_at)
			VALUES (?, 0, ?, ?, ?, ?, ?)`,
			index, meta.Metric, meta.BatchSize, meta.FormatVersion, now, now); err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", index, err)
		}
	case err != nil:
		return nil, err
	}

	if len(chunks) > 0 && meta.Dimension != 0 && meta.Dimension != dim {
		return nil, fmt.Errorf("%w: index %s has dimension %d, got %d", ErrDimensionMismatch, index, meta.Dimension, dim)
	}
	for _, c := range chunks {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM chunks WHERE index_name = ? AND id = ?", index, c.ID).Scan(&exists)
		if err == nil {
			return nil, fmt.Errorf("%w: %s already in index %s", ErrDuplicateID, c.ID, index)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	batchSize := meta.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	paths, err := s.loadPaths(ctx, tx, index)
	if err != nil {
		return nil, err
	}

	batch := meta.BatchCount
	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := min(lo+batchSize, len(chunks))
		for ordinal, c := range chunks[lo:hi] {
			pathID, err := s.internPath(ctx, tx, index, paths, c.Metadata.Path)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chunks (index_name, id, batch, ordinal, path_id, kind, name, code, vector)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				index, c.ID, batch, ordinal, pathID, string(c.Metadata.Kind), c.Metadata.Name, c.Metadata.Code,
				serializeVector(c.Vector)); err != nil {
				return nil, fmt.Errorf("write batch %d (chunks %d-%d) of index %s: %w", batch, lo, hi-1, index, err)
			}
		}
		batch++
	}

	if meta.Dimension == 0 {
		meta.Dimension = dim
	}
	meta.ChunkCount += len(chunks)
	meta.BatchCount = batch
	meta.BatchSize = batchSize
	meta.UpdatedAt = now
	if pc.provider != "" {
		meta.Provider, meta.Model = pc.provider, pc.model
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE indexes SET dimension = ?, chunk_count = ?, batch_count = ?, batch_size = ?,
		       provider = ?, model = ?, updated_at = ?
		WHERE name = ?`,
		meta.Dimension, meta.ChunkCount, meta.BatchCount, meta.BatchSize,
		meta.Provider, meta.Model, meta.UpdatedAt, index); err != nil {
		return nil, fmt.Errorf("failed to update index %s: %w", index, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	meta.StorageRoot = s.path
	return meta, nil
}

func (s *SQLiteStore) loadPaths(ctx context.Context, q querier, index string) (*PathTable, error) {
	rows, err := q.QueryContext(ctx, "SELECT path_id, path FROM paths WHERE index_name = ? ORDER BY rowid", index)
	if err != nil {
		return nil, fmt.Errorf("failed to load paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var f pathTableFile
	for rows.Next() {
		var e pathTableEntry
		if err := rows.Scan(&e.ID, &e.Path); err != nil {
			return nil, err
		}
		f.Paths = append(f.Paths, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	paths := NewPathTable()
	for _, e := range f.Paths {
		paths.byID[e.ID] = e.Path
		paths.byPath[e.Path] = e.ID
		paths.order = append(paths.order, e.ID)
	}
	paths.next = len(paths.order)
	return paths, nil
}

func (s *SQLiteStore) internPath(ctx context.Context, q querier, index string, paths *PathTable, path string) (string, error) {
	if id, ok := paths.ID(path); ok {
		return id, nil
	}
	id := paths.Intern(path)
	if _, err := q.ExecContext(ctx, "INSERT INTO paths (index_name, path_id, path) VALUES (?, ?, ?)", index, id, path); err != nil {
		return "", fmt.Errorf("failed to record path %s: %w", path, err)
	}
	return id, nil
}

const chunkColumns = `
	SELECT c.id, p.path, c.kind, c.name, c.code, c.vector
	FROM chunks c
	INNER JOIN paths p ON p.index_name = c.index_name AND p.path_id = c.path_id`

func scanChunk(rows interface{ Scan(...any) error }) (types.EmbeddedChunk, error) {
	var (
		c    types.EmbeddedChunk
		kind string
		blob []byte
	)
	if err := rows.Scan(&c.ID, &c.Metadata.Path, &kind, &c.Metadata.Name, &c.Metadata.Code, &blob); err != nil {
		return c, err
	}
	c.Metadata.Kind = types.ChunkKind(kind)
	c.Vector = deserializeVector(blob)
	return c, nil
}

func (s *SQLiteStore) Scan(ctx context.Context, loc *Location, fn func(types.EmbeddedChunk) error) error {
	rows, err := s.db.QueryContext(ctx, chunkColumns+`
		WHERE c.index_name = ?
		ORDER BY c.batch, c.ordinal`, loc.Index)
	if err != nil {
		return fmt.Errorf("failed to scan index %s: %w", loc.Index, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, index, id string) (*types.EmbeddedChunk, error) {
	row := s.db.QueryRowContext(ctx, chunkColumns+`
		WHERE c.index_name = ? AND c.id = ?`, index, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s in index %s: %w", id, index, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]types.IndexMetadata, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM indexes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]types.IndexMetadata, 0, len(names))
	for _, name := range names {
		meta, err := s.getMetadata(ctx, s.db, name)
		if err != nil {
			return nil, err
		}
		out = append(out, *meta)
	}
	return out, nil
}

func (s *SQLiteStore) Drop(ctx context.Context, index string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM chunks WHERE index_name = ?",
		"DELETE FROM paths WHERE index_name = ?",
		"DELETE FROM indexes WHERE name = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, index); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", index, err)
		}
	}
	return tx.Commit()
}

// SearchNative ranks in SQL with vec_distance_cosine when the extension is
// available, otherwise scores rows in Go
func (s *SQLiteStore) SearchNative(ctx context.Context, loc *Location, vector []float32, threshold float64, limit int) ([]types.SearchResult, error) {
	if VectorExtensionAvailable {
		return s.searchOptimized(ctx, loc, vector, threshold, limit)
	}
	return s.searchFallback(ctx, loc, vector, threshold, limit)
}

func (s *SQLiteStore) searchOptimized(ctx context.Context, loc *Location, vector []float32, threshold float64, limit int) ([]types.SearchResult, error) {
	// vec_distance_cosine returns a distance; similarity is 1 - distance
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, kind, name, code, similarity FROM (
			SELECT c.id AS id, p.path AS path, c.kind AS kind, c.name AS name, c.code AS code,
			       1.0 - vec_distance_cosine(c.vector, ?) AS similarity
			FROM chunks c
			INNER JOIN paths p ON p.index_name = c.index_name AND p.path_id = c.path_id
			WHERE c.index_name = ? AND length(c.vector) = ?
		)
		WHERE similarity > ?
		ORDER BY similarity DESC, id
		LIMIT ?`,
		serializeVector(vector), loc.Index, len(vector)*4, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ranker := NewRanker(threshold)
	for rows.Next() {
		var (
			id    string
			meta  types.ChunkMetadata
			kind  string
			score float64
		)
		if err := rows.Scan(&id, &meta.Path, &kind, &meta.Name, &meta.Code, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		meta.Kind = types.ChunkKind(kind)
		ranker.Add(id, meta, score)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ranker.Top(limit), nil
}

func (s *SQLiteStore) searchFallback(ctx context.Context, loc *Location, vector []float32, threshold float64, limit int) ([]types.SearchResult, error) {
	ranker := NewRanker(threshold)
	err := s.Scan(ctx, loc, func(c types.EmbeddedChunk) error {
		ranker.Offer(vector, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ranker.Top(limit), nil
}

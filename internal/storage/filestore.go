package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// Options configures the storage roots of a FileStore
type Options struct {
	PrimaryRoot    string   // <project>/.code-connoisseur/indexes
	AlternateRoot  string   // used when the primary root is not writable
	PointerDir     string   // holds pointer files for indexes under the alternate root
	LegacyRoot     string   // <project>/.code-connoisseur/vectors
	WellKnownRoots []string // probed last
	BatchSize      int
	Logger         *zap.Logger
}

// DefaultOptions derives the standard roots for a project directory.
// Roots that depend on an unavailable home or config directory are left empty.
func DefaultOptions(projectRoot string) Options {
	base := filepath.Join(projectRoot, ".code-connoisseur")
	opts := Options{
		PrimaryRoot: filepath.Join(base, "indexes"),
		LegacyRoot:  filepath.Join(base, "vectors"),
		BatchSize:   DefaultBatchSize,
	}

	if home, err := os.UserHomeDir(); err == nil {
		opts.AlternateRoot = filepath.Join(home, ".code-connoisseur", "indexes")
		opts.WellKnownRoots = append(opts.WellKnownRoots, opts.AlternateRoot)
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		opts.PointerDir = filepath.Join(cfg, "code-connoisseur", "locations")
	}
	opts.WellKnownRoots = append(opts.WellKnownRoots, filepath.Join(os.TempDir(), "code-connoisseur", "indexes"))

	return opts
}

// FileStore keeps each index as a directory of JSON batch files
type FileStore struct {
	opts     Options
	pointers PointerCandidate
	resolver *Resolver
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewFileStore creates a file store over the configured roots
func NewFileStore(opts Options) *FileStore {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pointers := PointerCandidate{Dir: opts.PointerDir}
	candidates := []StorageRootCandidate{
		DirCandidate{Label: "primary", Dir: opts.PrimaryRoot},
		pointers,
		DirCandidate{Label: "legacy", Dir: opts.LegacyRoot},
	}
	for _, root := range opts.WellKnownRoots {
		candidates = append(candidates, DirCandidate{Label: "well-known", Dir: root})
	}

	return &FileStore{
		opts:     opts,
		pointers: pointers,
		resolver: NewResolver(candidates...),
		logger:   logger,
	}
}

// Resolver exposes the candidate order used by Resolve
func (s *FileStore) Resolver() *Resolver {
	return s.resolver
}

func (s *FileStore) Resolve(ctx context.Context, index string) (*Location, error) {
	return s.resolver.Resolve(ctx, index)
}

// indexState is everything Persist needs to extend an index
type indexState struct {
	dir     string
	root    string
	meta    types.IndexMetadata
	paths   *PathTable
	offsets map[string]int
}

func (s *FileStore) Persist(ctx context.Context, index string, chunks []types.EmbeddedChunk, opts ...PersistOption) (*types.IndexMetadata, error) {
	if err := ValidateIndexName(index); err != nil {
		return nil, err
	}
	dim, err := checkChunks(chunks)
	if err != nil {
		return nil, err
	}
	pc := newPersistConfig(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.openState(ctx, index)
	if err != nil {
		return nil, err
	}

	// validate against the existing index before touching the disk
	if len(chunks) > 0 {
		if state.meta.Dimension != 0 && state.meta.Dimension != dim {
			return nil, fmt.Errorf("%w: index %s has dimension %d, got %d", ErrDimensionMismatch, index, state.meta.Dimension, dim)
		}
		for _, c := range chunks {
			if _, ok := state.offsets[c.ID]; ok {
				return nil, fmt.Errorf("%w: %s already in index %s", ErrDuplicateID, c.ID, index)
			}
		}
	}

	if state.dir == "" {
		if err := s.createDir(index, state); err != nil {
			return nil, err
		}
	}

	batchSize := state.meta.BatchSize
	if batchSize <= 0 {
		batchSize = s.opts.BatchSize
	}

	batch := state.meta.BatchCount
	for lo := 0; lo < len(chunks); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+batchSize, len(chunks))
		if err := s.writeBatch(state, batch, chunks[lo:hi]); err != nil {
			return nil, fmt.Errorf("write batch %d (chunks %d-%d) of index %s: %w", batch, lo, hi-1, index, err)
		}
		batch++
	}

	now := time.Now().UTC()
	meta := state.meta
	meta.Name = index
	meta.Metric = types.MetricCosine
	meta.FormatVersion = FormatVersion
	meta.StorageRoot = state.root
	meta.BatchSize = batchSize
	meta.BatchCount = batch
	meta.ChunkCount += len(chunks)
	meta.UpdatedAt = now
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	if meta.Dimension == 0 {
		meta.Dimension = dim
	}
	if pc.provider != "" {
		meta.Provider = pc.provider
		meta.Model = pc.model
	}

	if err := writeJSONAtomic(filepath.Join(state.dir, PathsFile), state.paths); err != nil {
		return nil, fmt.Errorf("write path table of index %s: %w", index, err)
	}
	if err := writeJSONAtomic(filepath.Join(state.dir, OffsetsFile), offsetsFile{Version: schemaV2, Offsets: state.offsets}); err != nil {
		return nil, fmt.Errorf("write offsets of index %s: %w", index, err)
	}
	if err := writeJSONAtomic(filepath.Join(state.dir, IndexFile), meta); err != nil {
		return nil, fmt.Errorf("write descriptor of index %s: %w", index, err)
	}

	s.logger.Debug("persisted chunks",
		zap.String("index", index),
		zap.Int("chunks", len(chunks)),
		zap.Int("batches", batch-state.meta.BatchCount),
		zap.String("root", state.root))

	return &meta, nil
}

// openState loads an existing index or returns an empty state for a new one
func (s *FileStore) openState(ctx context.Context, index string) (*indexState, error) {
	loc, err := s.resolver.Resolve(ctx, index)
	if errors.Is(err, ErrNotFound) {
		return &indexState{
			paths:   NewPathTable(),
			offsets: make(map[string]int),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	state := &indexState{
		dir:  loc.Dir,
		root: loc.Root,
		meta: loc.Metadata,
	}
	if state.paths, err = s.loadPaths(loc.Dir); err != nil {
		return nil, err
	}
	if state.offsets, err = s.loadOffsets(loc); err != nil {
		return nil, err
	}
	return state, nil
}

// createDir picks a writable root: the primary, then the alternate once
func (s *FileStore) createDir(index string, state *indexState) error {
	primary := filepath.Join(s.opts.PrimaryRoot, index)
	perr := os.MkdirAll(primary, 0o755)
	if perr == nil {
		state.dir, state.root = primary, s.opts.PrimaryRoot
		return nil
	}
	if s.opts.AlternateRoot == "" {
		return fmt.Errorf("create index directory %s: %w", primary, perr)
	}

	s.logger.Warn("primary storage root not writable, using alternate",
		zap.String("primary", s.opts.PrimaryRoot),
		zap.String("alternate", s.opts.AlternateRoot),
		zap.Error(perr))

	alternate := filepath.Join(s.opts.AlternateRoot, index)
	if err := os.MkdirAll(alternate, 0o755); err != nil {
		return fmt.Errorf("create index directory: primary %s: %v; alternate %s: %w", primary, perr, alternate, err)
	}
	state.dir, state.root = alternate, s.opts.AlternateRoot

	if err := s.pointers.write(index, s.opts.AlternateRoot); err != nil {
		s.logger.Warn("could not record alternate location",
			zap.String("index", index),
			zap.Error(err))
	}
	return nil
}

func (s *FileStore) writeBatch(state *indexState, batch int, chunks []types.EmbeddedChunk) error {
	vectors := make([]vectorRecord, len(chunks))
	metadata := make([]metadataRecordV2, len(chunks))
	for i, c := range chunks {
		vectors[i] = vectorRecord{ID: c.ID, Vector: c.Vector}
		metadata[i] = metadataRecordV2{
			ID:     c.ID,
			PathID: state.paths.Intern(c.Metadata.Path),
			Kind:   c.Metadata.Kind,
			Name:   c.Metadata.Name,
			Code:   c.Metadata.Code,
		}
	}

	vdata, err := encodeVectors(vectors)
	if err != nil {
		return err
	}
	mdata, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(state.dir, VectorsFile(batch)), vdata); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(state.dir, MetadataFile(batch)), mdata); err != nil {
		return err
	}

	for _, c := range chunks {
		state.offsets[c.ID] = batch
	}
	return nil
}

func (s *FileStore) loadPaths(dir string) (*PathTable, error) {
	paths := NewPathTable()
	err := readJSON(filepath.Join(dir, PathsFile), paths)
	if errors.Is(err, fs.ErrNotExist) {
		return paths, nil
	}
	return paths, err
}

// loadOffsets reads the offset map, rebuilding it from the batch files
// when it is missing
func (s *FileStore) loadOffsets(loc *Location) (map[string]int, error) {
	var f offsetsFile
	err := readJSON(filepath.Join(loc.Dir, OffsetsFile), &f)
	if err == nil && f.Offsets != nil {
		return f.Offsets, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	offsets := make(map[string]int)
	for i := 0; i < loc.Metadata.BatchCount; i++ {
		data, err := os.ReadFile(filepath.Join(loc.Dir, VectorsFile(i)))
		if err != nil {
			continue
		}
		records, err := decodeVectors(data)
		if err != nil {
			continue
		}
		for _, r := range records {
			offsets[r.ID] = i
		}
	}
	return offsets, nil
}

// readBatch joins the i-th vectors and metadata files by id, in vector order
func (s *FileStore) readBatch(dir string, i int, paths *PathTable) ([]types.EmbeddedChunk, error) {
	vdata, err := os.ReadFile(filepath.Join(dir, VectorsFile(i)))
	if err != nil {
		return nil, err
	}
	mdata, err := os.ReadFile(filepath.Join(dir, MetadataFile(i)))
	if err != nil {
		return nil, err
	}

	vectors, err := decodeVectors(vdata)
	if err != nil {
		return nil, err
	}
	entries, err := decodeMetadata(mdata, paths)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]types.ChunkMetadata, len(entries))
	for _, e := range entries {
		byID[e.ID] = e.Metadata
	}

	out := make([]types.EmbeddedChunk, 0, len(vectors))
	for _, v := range vectors {
		meta, ok := byID[v.ID]
		if !ok {
			return nil, fmt.Errorf("%w: chunk %s has a vector but no metadata", ErrCorrupt, v.ID)
		}
		out = append(out, types.EmbeddedChunk{ID: v.ID, Vector: v.Vector, Metadata: meta})
	}
	return out, nil
}

// Scan skips batches that are missing or unreadable and logs them
func (s *FileStore) Scan(ctx context.Context, loc *Location, fn func(types.EmbeddedChunk) error) error {
	paths, err := s.loadPaths(loc.Dir)
	if err != nil {
		s.logger.Warn("path table unreadable", zap.String("index", loc.Index), zap.Error(err))
		paths = NewPathTable()
	}

	for i := 0; i < loc.Metadata.BatchCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks, err := s.readBatch(loc.Dir, i, paths)
		if err != nil {
			s.logger.Warn("skipping unreadable batch",
				zap.String("index", loc.Index),
				zap.Int("batch", i),
				zap.Error(err))
			continue
		}
		for _, c := range chunks {
			if err := fn(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, index, id string) (*types.EmbeddedChunk, error) {
	loc, err := s.resolver.Resolve(ctx, index)
	if err != nil {
		return nil, err
	}
	offsets, err := s.loadOffsets(loc)
	if err != nil {
		return nil, err
	}
	batch, ok := offsets[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s in index %s: %w", id, index, ErrNotFound)
	}

	paths, err := s.loadPaths(loc.Dir)
	if err != nil {
		return nil, err
	}
	chunks, err := s.readBatch(loc.Dir, batch, paths)
	if err != nil {
		return nil, fmt.Errorf("read batch %d of index %s: %w", batch, index, err)
	}
	for i := range chunks {
		if chunks[i].ID == id {
			return &chunks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: chunk %s missing from batch %d", ErrCorrupt, id, batch)
}

// List walks every candidate root; an index name resolves to its first hit
func (s *FileStore) List(ctx context.Context) ([]types.IndexMetadata, error) {
	names := make(map[string]struct{})

	roots := []string{s.opts.PrimaryRoot, s.opts.LegacyRoot}
	roots = append(roots, s.opts.WellKnownRoots...)
	for _, root := range roots {
		if root == "" {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && fileExists(filepath.Join(root, e.Name(), IndexFile)) {
				names[e.Name()] = struct{}{}
			}
		}
	}
	if s.opts.PointerDir != "" {
		if entries, err := os.ReadDir(s.opts.PointerDir); err == nil {
			for _, e := range entries {
				if ext := filepath.Ext(e.Name()); ext == ".json" && !e.IsDir() {
					names[e.Name()[:len(e.Name())-len(ext)]] = struct{}{}
				}
			}
		}
	}

	var out []types.IndexMetadata
	for name := range names {
		loc, err := s.resolver.Resolve(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		out = append(out, loc.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Drop removes every copy of index reachable through the candidates,
// so a later resolve cannot fall through to a stale one
func (s *FileStore) Drop(ctx context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range s.resolver.Candidates() {
		loc, err := s.resolver.Resolve(ctx, index)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}
		if err := os.RemoveAll(loc.Dir); err != nil {
			return fmt.Errorf("drop index %s at %s: %w", index, loc.Dir, err)
		}
		s.logger.Debug("dropped index", zap.String("index", index), zap.String("dir", loc.Dir))
	}
	return s.pointers.remove(index)
}

func (s *FileStore) Close() error {
	return nil
}

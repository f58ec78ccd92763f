package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// StorageRootCandidate proposes a storage root that may hold an index
type StorageRootCandidate interface {
	// Name identifies the candidate in logs and Location.Source
	Name() string

	// Root returns the root to probe for index, or false when the
	// candidate has nothing to offer
	Root(index string) (string, bool)
}

// DirCandidate is a fixed storage root directory
type DirCandidate struct {
	Label string
	Dir   string
}

func (d DirCandidate) Name() string { return d.Label }

func (d DirCandidate) Root(string) (string, bool) {
	return d.Dir, d.Dir != ""
}

// PointerCandidate reads the pointer file recorded when an index was
// created under the alternate root
type PointerCandidate struct {
	Dir string
}

func (p PointerCandidate) Name() string { return "pointer" }

func (p PointerCandidate) Root(index string) (string, bool) {
	if p.Dir == "" {
		return "", false
	}
	var ptr pointerFile
	if err := readJSON(p.path(index), &ptr); err != nil {
		return "", false
	}
	return ptr.Root, ptr.Root != "" && ptr.Index == index
}

func (p PointerCandidate) path(index string) string {
	return filepath.Join(p.Dir, index+".json")
}

// write records root as the location of index
func (p PointerCandidate) write(index, root string) error {
	if p.Dir == "" {
		return errors.New("no pointer directory configured")
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return err
	}
	return writeJSONAtomic(p.path(index), pointerFile{Index: index, Root: root, CreatedAt: time.Now().UTC()})
}

func (p PointerCandidate) remove(index string) error {
	if p.Dir == "" {
		return nil
	}
	err := os.Remove(p.path(index))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

type pointerFile struct {
	Index     string    `json:"index"`
	Root      string    `json:"root"`
	CreatedAt time.Time `json:"createdAt"`
}

// Resolver probes candidates in order; the first whose index descriptor exists wins
type Resolver struct {
	candidates []StorageRootCandidate
}

// NewResolver creates a resolver over the given ordered candidates
func NewResolver(candidates ...StorageRootCandidate) *Resolver {
	return &Resolver{candidates: candidates}
}

// Candidates returns the probe order
func (r *Resolver) Candidates() []StorageRootCandidate {
	return r.candidates
}

// Resolve returns the first location holding index
func (r *Resolver) Resolve(ctx context.Context, index string) (*Location, error) {
	if err := ValidateIndexName(index); err != nil {
		return nil, err
	}

	for _, c := range r.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root, ok := c.Root(index)
		if !ok {
			continue
		}
		dir := filepath.Join(root, index)
		descriptor := filepath.Join(dir, IndexFile)
		if !fileExists(descriptor) {
			continue
		}

		var meta types.IndexMetadata
		if err := readJSON(descriptor, &meta); err != nil {
			return nil, fmt.Errorf("read index %s from %s: %w", index, c.Name(), err)
		}
		if err := checkFormat(&meta); err != nil {
			return nil, err
		}
		if meta.Name == "" {
			meta.Name = index
		}
		if meta.StorageRoot == "" {
			meta.StorageRoot = root
		}
		if meta.BatchCount == 0 {
			meta.BatchCount = countBatches(dir)
		}

		return &Location{
			Index:    index,
			Root:     root,
			Dir:      dir,
			Source:   c.Name(),
			Metadata: meta,
		}, nil
	}

	return nil, fmt.Errorf("index %s: %w", index, ErrNotFound)
}

// countBatches discovers batch files of descriptors that predate batchCount
func countBatches(dir string) int {
	n := 0
	for fileExists(filepath.Join(dir, VectorsFile(n))) {
		n++
	}
	return n
}

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// On-disk file names inside an index directory
const (
	IndexFile   = "index.json"
	PathsFile   = "paths.json"
	OffsetsFile = "offsets.json"

	// FormatVersion is written to every new index descriptor
	FormatVersion = "2.0.0"

	// legacyFormatVersion is assumed for descriptors without a version
	legacyFormatVersion = "1.0.0"

	// Batch file schema versions
	schemaV1 = 1 // full keys: path, kind, name, code
	schemaV2 = 2 // short keys: p, t, n, c with p resolved through the path table

	// DefaultBatchSize is the number of chunks per batch file pair
	DefaultBatchSize = 500
)

// VectorsFile names the i-th vectors batch file
func VectorsFile(i int) string {
	return "vectors-" + strconv.Itoa(i) + ".json"
}

// MetadataFile names the i-th metadata batch file
func MetadataFile(i int) string {
	return "metadata-" + strconv.Itoa(i) + ".json"
}

// checkFormat rejects descriptors written by a newer major format
func checkFormat(meta *types.IndexMetadata) error {
	v := meta.FormatVersion
	if v == "" {
		v = legacyFormatVersion
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: format version %q: %v", ErrCorrupt, v, err)
	}
	supported := semver.MustParse(FormatVersion)
	if got.Major() > supported.Major() {
		return fmt.Errorf("%w: index %s uses format %s, this build reads up to %d.x", ErrUnsupportedFormat, meta.Name, got, supported.Major())
	}
	return nil
}

// batchEnvelope is the versioned wrapper around every batch file
type batchEnvelope struct {
	Version int             `json:"version"`
	Entries json.RawMessage `json:"entries"`
}

type vectorRecord struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

type metadataRecordV2 struct {
	ID     string          `json:"id"`
	PathID string          `json:"p"`
	Kind   types.ChunkKind `json:"t"`
	Name   string          `json:"n"`
	Code   string          `json:"c"`
}

type metadataRecordV1 struct {
	ID   string          `json:"id"`
	Path string          `json:"path"`
	Kind types.ChunkKind `json:"kind"`
	Name string          `json:"name"`
	Code string          `json:"code"`
}

// decodeEnvelope accepts a versioned object or a bare array, which is
// treated as the legacy schema
func decodeEnvelope(data []byte) (int, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return schemaV1, trimmed, nil
	}

	var env batchEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	switch env.Version {
	case 0:
		env.Version = schemaV1
	case schemaV1, schemaV2:
	default:
		return 0, nil, fmt.Errorf("%w: batch schema version %d", ErrUnsupportedFormat, env.Version)
	}
	return env.Version, env.Entries, nil
}

func encodeVectors(records []vectorRecord) ([]byte, error) {
	entries, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return json.Marshal(batchEnvelope{Version: schemaV2, Entries: entries})
}

func decodeVectors(data []byte) ([]vectorRecord, error) {
	_, entries, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	var records []vectorRecord
	if err := json.Unmarshal(entries, &records); err != nil {
		return nil, fmt.Errorf("%w: vectors: %v", ErrCorrupt, err)
	}
	return records, nil
}

func encodeMetadata(records []metadataRecordV2) ([]byte, error) {
	entries, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return json.Marshal(batchEnvelope{Version: schemaV2, Entries: entries})
}

// metadataEntry is a decoded metadata record in full form
type metadataEntry struct {
	ID       string
	Metadata types.ChunkMetadata
}

// decodeMetadata translates either schema into full-form metadata
func decodeMetadata(data []byte, paths *PathTable) ([]metadataEntry, error) {
	version, entries, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch version {
	case schemaV2:
		var records []metadataRecordV2
		if err := json.Unmarshal(entries, &records); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
		}
		out := make([]metadataEntry, len(records))
		for i, r := range records {
			path, ok := paths.Path(r.PathID)
			if !ok {
				return nil, fmt.Errorf("%w: unknown path id %q", ErrCorrupt, r.PathID)
			}
			out[i] = metadataEntry{
				ID:       r.ID,
				Metadata: types.ChunkMetadata{Path: path, Kind: r.Kind, Name: r.Name, Code: r.Code},
			}
		}
		return out, nil
	default:
		var records []metadataRecordV1
		if err := json.Unmarshal(entries, &records); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
		}
		out := make([]metadataEntry, len(records))
		for i, r := range records {
			out[i] = metadataEntry{
				ID:       r.ID,
				Metadata: types.ChunkMetadata{Path: r.Path, Kind: r.Kind, Name: r.Name, Code: r.Code},
			}
		}
		return out, nil
	}
}

// offsetsFile maps chunk ids to the batch holding them
type offsetsFile struct {
	Version int            `json:"version"`
	Offsets map[string]int `json:"offsets"`
}

// writeJSONAtomic writes v to path through a temp file and rename, so
// readers never observe a half-written file
func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

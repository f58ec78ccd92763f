package types

import (
	"errors"
	"unicode/utf8"
)

// ChunkKind represents the kind of declaration a chunk was cut from
type ChunkKind string

const (
	KindClass               ChunkKind = "class"
	KindFunction            ChunkKind = "function"
	KindInterface           ChunkKind = "interface"
	KindTypeAlias           ChunkKind = "type_alias"
	KindEnum                ChunkKind = "enum"
	KindExportedDeclaration ChunkKind = "exported_declaration"
	KindFile                ChunkKind = "file"
)

const (
	// MaxChunkChars bounds the code carried by a single chunk
	MaxChunkChars = 5000

	// AnonymousName is used when no declaration identifier can be found
	AnonymousName = "anonymous"
)

// Valid reports whether k is one of the known chunk kinds
func (k ChunkKind) Valid() bool {
	switch k {
	case KindClass, KindFunction, KindInterface, KindTypeAlias, KindEnum, KindExportedDeclaration, KindFile:
		return true
	default:
		return false
	}
}

// CodeChunk is a named, bounded unit of source code produced by one extraction pass
type CodeChunk struct {
	Kind       ChunkKind
	Name       string
	Code       string
	SourcePath string
}

// Validate checks the chunk invariants
func (c *CodeChunk) Validate() error {
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	if c.Name == "" {
		return errors.New("chunk name cannot be empty")
	}
	if utf8.RuneCountInString(c.Code) > MaxChunkChars {
		return ErrChunkTooLarge
	}
	return nil
}

// ChunkMetadata is the descriptive half of an embedded chunk
type ChunkMetadata struct {
	Path string    `json:"path"`
	Kind ChunkKind `json:"kind"`
	Name string    `json:"name"`
	Code string    `json:"code"`
}

// EmbeddedChunk pairs a chunk with its vector and a deterministic id
type EmbeddedChunk struct {
	ID       string
	Vector   []float32
	Metadata ChunkMetadata
}

// MetadataOf converts a code chunk to its stored metadata form
func MetadataOf(c CodeChunk) ChunkMetadata {
	return ChunkMetadata{
		Path: c.SourcePath,
		Kind: c.Kind,
		Name: c.Name,
		Code: c.Code,
	}
}

// TruncateChars returns the first max characters of s, never splitting a rune
func TruncateChars(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// SourceFile is one {path, content} pair handed to the extractor
type SourceFile struct {
	Path    string
	Content []byte
}

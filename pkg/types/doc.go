// Package types provides shared type definitions for the code-connoisseur index core.
//
// The types here describe the data that flows through the pipeline:
//
//	file text -> CodeChunk -> EmbeddedChunk -> batches on disk
//	query text -> vector -> SearchResult
//
// # Chunks
//
// CodeChunk is produced by the extractor. Its Code is always a contiguous
// substring of the original file, or a prefix of it for whole-file chunks, and
// never longer than MaxChunkChars characters:
//
//	chunk := types.CodeChunk{
//	    Kind:       types.KindClass,
//	    Name:       "UserService",
//	    Code:       "class UserService { ... }",
//	    SourcePath: "src/user.ts",
//	}
//
// When no identifier can be found the name is AnonymousName.
//
// # Embedded chunks
//
// EmbeddedChunk adds a deterministic id and a fixed-dimension vector. The
// metadata half (ChunkMetadata) is what search results carry back to callers.
//
// # Index metadata
//
// IndexMetadata is written last during a persist, so an index is only
// considered to exist once its descriptor is on disk.
package types

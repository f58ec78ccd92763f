// Package storage persists embedded chunks under named indexes.
//
// Two backends implement VectorStore:
//
//   - FileStore keeps each index as a directory of JSON batch files under
//     a storage root. This is the default.
//   - SQLiteStore keeps every index in one database file and, when built
//     with the sqlite_vec tag, ranks vectors in SQL.
//
// # On-disk layout
//
// A file-backed index directory holds:
//
//	index.json          descriptor, written last
//	paths.json          path table: short id -> file path
//	offsets.json        chunk id -> batch number
//	vectors-N.json      {"version":2,"entries":[{"id","vector"}]}
//	metadata-N.json     {"version":2,"entries":[{"id","p","t","n","c"}]}
//
// Batches hold at most DefaultBatchSize chunks. Readers also accept the
// older layout: bare JSON arrays with full keys (path, kind, name, code) and
// descriptors without a format version or batch count.
//
// # Resolution
//
// An index is looked up through an ordered list of StorageRootCandidate
// values. The first candidate whose directory holds an index.json wins:
//
//  1. the primary root, <project>/.code-connoisseur/indexes
//  2. the pointer file left when the primary root was not writable
//  3. the legacy root, <project>/.code-connoisseur/vectors
//  4. well-known roots under the home and temp directories
//
// # Basic Usage
//
//	store, err := storage.Open(storage.Config{ProjectRoot: root})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	meta, err := store.Persist(ctx, "main", chunks)
//
//	loc, err := store.Resolve(ctx, "main")
//	err = store.Scan(ctx, loc, func(c types.EmbeddedChunk) error {
//	    ranker.Offer(query, c)
//	    return nil
//	})
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and needs no C toolchain.
// Building with -tags sqlite_vec switches to mattn/go-sqlite3 with the
// sqlite-vec extension loaded, and SearchNative ranks with
// vec_distance_cosine.
package storage

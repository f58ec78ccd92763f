// Package searcher answers similarity queries against a stored index.
//
// A query is embedded with the same pipeline that built the index and
// compared by cosine similarity against every stored vector. Results at or
// below the threshold are dropped; the rest are sorted by score, ties by id,
// and cut to TopK.
//
// # Basic Usage
//
//	s := searcher.New(store, pipeline)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "parse the config file",
//	    Index: "main",
//	    TopK:  5,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%s %s (score: %.2f)\n", r.Metadata.Path, r.Metadata.Name, r.Score)
//	}
//
// A missing index is not an error: the response simply has no results.
//
// # Caching
//
// Responses are cached in an LRU keyed by index, query, TopK and the
// index's last update time, so re-indexing makes earlier answers unreachable.
// Entries also expire after DefaultCacheTTL.
//
// # Native ranking
//
// Stores that implement storage.NativeSearcher rank vectors themselves;
// the searcher then skips the scan and uses their results directly.
package searcher

// Package chunker turns a source file into named code chunks.
//
// Each file is routed to its language family and the family's strategies
// are tried in order until one yields chunks. Files that are oversized,
// empty, or binary skip parsing and become a single whole-file chunk, as do
// files on which every strategy fails.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithLogger(logger))
//	chunks := c.Extract(ctx, content, "src/app.ts")
//	for _, ch := range chunks {
//	    fmt.Printf("%s %s (%d chars)\n", ch.Kind, ch.Name, len(ch.Code))
//	}
//
// Every chunk's code is capped at types.MaxChunkChars characters.
package chunker

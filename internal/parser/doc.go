// Package parser provides the extraction strategies used by the chunk extractor.
//
// Each Strategy turns file content into top-level code chunks or fails. The
// extractor walks a language family's strategies in order and stops at the
// first one that returns chunks:
//
//	family := parser.DefaultRegistry().Lookup("src/user.ts")
//	for _, s := range family.Strategies {
//	    chunks, err := s.TryExtract(ctx, content, "src/user.ts")
//	    if err == nil {
//	        return chunks
//	    }
//	}
//
// # Strategies
//
//   - TreeSitter: grammar-based, strict (fails on any syntax error) or
//     permissive (skips error nodes)
//   - GoAST: go/parser for Go sources
//   - BraceHeuristic: keyword match plus brace-depth tracking
//   - IndentHeuristic: keyword match plus indentation comparison
//   - WholeFile: terminal strategy, never fails
//
// Only top-level declarations are extracted: classes, functions, interfaces,
// type aliases, enums and export statements. Byte ranges are validated before
// slicing; an invalid range skips the node instead of failing the strategy.
//
// # Naming
//
// The declaration identifier is preferred. Export statements take the name of
// the declaration they wrap. Anything else is named "anonymous".
package parser

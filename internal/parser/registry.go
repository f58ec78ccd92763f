package parser

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Family is a language family and its ordered strategy ladder.
// The whole-file strategy is not listed; the extractor always appends it.
type Family struct {
	Name       string
	Extensions []string
	Strategies []Strategy
}

// Registry maps file extensions to language families
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string]*Family
	families []*Family
	fallback *Family
}

// NewRegistry creates a registry whose unknown-extension family is fallback
func NewRegistry(fallback *Family) *Registry {
	return &Registry{
		byExt:    make(map[string]*Family),
		fallback: fallback,
	}
}

// Register adds a family under each of its extensions
func (r *Registry) Register(f *Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families = append(r.families, f)
	for _, ext := range f.Extensions {
		r.byExt[normalizeExt(ext)] = f
	}
}

// Lookup returns the family for path; never nil
func (r *Registry) Lookup(path string) *Family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.byExt[normalizeExt(filepath.Ext(path))]; ok {
		return f
	}
	return r.fallback
}

// Extensions returns every registered extension, with leading dot
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for _, f := range r.families {
		for _, ext := range f.Extensions {
			exts = append(exts, "."+normalizeExt(ext))
		}
	}
	return exts
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DefaultRegistry wires the supported language families
func DefaultRegistry() *Registry {
	r := NewRegistry(&Family{
		Name:       "plain",
		Strategies: []Strategy{BraceHeuristic{}},
	})

	r.Register(&Family{
		Name:       "javascript",
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		Strategies: []Strategy{
			NewTreeSitter("javascript", javascript.GetLanguage(), true),
			NewTreeSitter("tsx", tsx.GetLanguage(), false),
			BraceHeuristic{},
		},
	})
	r.Register(&Family{
		Name:       "typescript",
		Extensions: []string{"ts", "mts", "cts"},
		Strategies: []Strategy{
			NewTreeSitter("typescript", typescript.GetLanguage(), true),
			NewTreeSitter("tsx", tsx.GetLanguage(), false),
			BraceHeuristic{},
		},
	})
	r.Register(&Family{
		Name:       "tsx",
		Extensions: []string{"tsx"},
		Strategies: []Strategy{
			NewTreeSitter("tsx", tsx.GetLanguage(), true),
			NewTreeSitter("typescript", typescript.GetLanguage(), false),
			BraceHeuristic{},
		},
	})
	r.Register(&Family{
		Name:       "python",
		Extensions: []string{"py", "pyi"},
		Strategies: []Strategy{
			NewTreeSitter("python", python.GetLanguage(), true),
			NewTreeSitter("python", python.GetLanguage(), false),
			IndentHeuristic{},
		},
	})
	r.Register(&Family{
		Name:       "go",
		Extensions: []string{"go"},
		Strategies: []Strategy{
			NewGoAST(),
			NewTreeSitter("go", golang.GetLanguage(), false),
			BraceHeuristic{},
		},
	})

	return r
}

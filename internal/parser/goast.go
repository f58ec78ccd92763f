package parser

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// GoAST extracts top-level Go declarations with the standard library parser.
// It is strict: any syntax error fails the strategy.
type GoAST struct{}

// NewGoAST creates a Go strategy
func NewGoAST() *GoAST {
	return &GoAST{}
}

func (g *GoAST) Name() string {
	return "go/ast"
}

func (g *GoAST) TryExtract(ctx context.Context, content []byte, path string) ([]types.CodeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	e := &declExtractor{
		fset:    fset,
		content: content,
		path:    path,
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			e.extractGenDecl(d)
		}
	}

	if len(e.chunks) == 0 {
		return nil, ErrNoChunks
	}
	return e.chunks, nil
}

// declExtractor collects chunks for one file
type declExtractor struct {
	fset    *token.FileSet
	content []byte
	path    string
	chunks  []types.CodeChunk
}

// extractFunction handles functions and methods; methods are named Receiver.Method
func (e *declExtractor) extractFunction(fn *ast.FuncDecl) {
	name := fn.Name.Name
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		if recv := receiverType(fn.Recv.List[0].Type); recv != "" {
			name = recv + "." + name
		}
	}
	e.add(types.KindFunction, name, fn.Pos(), fn.End())
}

// extractGenDecl handles type declarations and iota const groups
func (e *declExtractor) extractGenDecl(gen *ast.GenDecl) {
	switch gen.Tok {
	case token.TYPE:
		grouped := gen.Lparen.IsValid()
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			kind := types.KindTypeAlias
			switch ts.Type.(type) {
			case *ast.StructType:
				kind = types.KindClass
			case *ast.InterfaceType:
				kind = types.KindInterface
			}
			if grouped {
				e.add(kind, ts.Name.Name, ts.Pos(), ts.End())
			} else {
				e.add(kind, ts.Name.Name, gen.Pos(), gen.End())
			}
		}
	case token.CONST:
		if name, ok := iotaEnumName(gen); ok {
			e.add(types.KindEnum, name, gen.Pos(), gen.End())
		}
	}
}

func (e *declExtractor) add(kind types.ChunkKind, name string, from, to token.Pos) {
	start := e.fset.Position(from).Offset
	end := e.fset.Position(to).Offset
	if !validRange(start, end, len(e.content)) {
		return
	}
	e.chunks = append(e.chunks, types.CodeChunk{
		Kind:       kind,
		Name:       nameOrAnonymous(name),
		Code:       string(e.content[start:end]),
		SourcePath: e.path,
	})
}

// iotaEnumName recognises `const ( A Kind = iota ... )` groups.
// The group is named after its declared type, else its first constant.
func iotaEnumName(gen *ast.GenDecl) (string, bool) {
	if !gen.Lparen.IsValid() || len(gen.Specs) == 0 {
		return "", false
	}
	first, ok := gen.Specs[0].(*ast.ValueSpec)
	if !ok || len(first.Values) == 0 {
		return "", false
	}
	usesIota := false
	ast.Inspect(first.Values[0], func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == "iota" {
			usesIota = true
		}
		return !usesIota
	})
	if !usesIota {
		return "", false
	}
	if id, ok := first.Type.(*ast.Ident); ok {
		return id.Name, true
	}
	if len(first.Names) > 0 {
		return first.Names[0].Name, true
	}
	return "", true
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

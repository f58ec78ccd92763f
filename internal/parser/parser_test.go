package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/code-connoisseur/pkg/types"
)

func kindsAndNames(chunks []types.CodeChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c.Kind) + ":" + c.Name
	}
	return out
}

func assertSubstrings(t *testing.T, src string, chunks []types.CodeChunk) {
	t.Helper()
	for _, c := range chunks {
		assert.True(t, strings.Contains(src, c.Code), "chunk %q is not a substring of the source", c.Name)
	}
}

func TestTreeSitter_JavaScriptClassAndAnonymousDefaultExport(t *testing.T) {
	src := `class Foo {
  bar() {
    return 1;
  }
}

export default function () {
  return new Foo();
}
`
	s := DefaultRegistry().Lookup("a.js").Strategies[0]
	chunks, err := s.TryExtract(context.Background(), []byte(src), "src/a.js")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, []string{"class:Foo", "exported_declaration:anonymous"}, kindsAndNames(chunks))
	assert.True(t, strings.HasPrefix(chunks[0].Code, "class Foo"))
	assert.True(t, strings.HasPrefix(chunks[1].Code, "export default function"))
	assertSubstrings(t, src, chunks)
	for _, c := range chunks {
		assert.Equal(t, "src/a.js", c.SourcePath)
	}
}

func TestTreeSitter_TypeScriptDeclarations(t *testing.T) {
	src := `import { x } from "./x";

interface User {
  id: number;
}

type ID = string;

enum Color { Red, Green }

export class UserService {
  find(id: ID): User | undefined { return undefined; }
}

const add = (a: number, b: number): number => a + b;

const limit = 10;
`
	family := DefaultRegistry().Lookup("service.ts")
	require.Equal(t, "typescript", family.Name)

	chunks, err := family.Strategies[0].TryExtract(context.Background(), []byte(src), "service.ts")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"interface:User",
		"type_alias:ID",
		"enum:Color",
		"exported_declaration:UserService",
		"function:add",
	}, kindsAndNames(chunks))
	assertSubstrings(t, src, chunks)
}

func TestTreeSitter_StrictRejectsSyntaxErrors(t *testing.T) {
	src := "function broken( {\n  return 1\n"
	s := DefaultRegistry().Lookup("a.js").Strategies[0]

	_, err := s.TryExtract(context.Background(), []byte(src), "a.js")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
}

func TestTreeSitter_StrictJavaScriptRejectsTypeScriptSyntax(t *testing.T) {
	src := "interface Shape {\n  area(): number;\n}\n"
	js := DefaultRegistry().Lookup("shape.js").Strategies

	_, err := js[0].TryExtract(context.Background(), []byte(src), "shape.js")
	require.Error(t, err)

	chunks, err := js[1].TryExtract(context.Background(), []byte(src), "shape.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"interface:Shape"}, kindsAndNames(chunks))
}

func TestTreeSitter_NoDeclarations(t *testing.T) {
	s := DefaultRegistry().Lookup("a.js").Strategies[0]

	_, err := s.TryExtract(context.Background(), []byte("console.log(1);\n"), "a.js")
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestTreeSitter_Python(t *testing.T) {
	src := `import os


class Greeter:
    def hello(self):
        return "hi"


@cached
def compute(x):
    return x * 2


VALUE = 3
`
	s := DefaultRegistry().Lookup("mod.py").Strategies[0]
	chunks, err := s.TryExtract(context.Background(), []byte(src), "mod.py")
	require.NoError(t, err)

	assert.Equal(t, []string{"class:Greeter", "function:compute"}, kindsAndNames(chunks))
	assert.True(t, strings.HasPrefix(chunks[1].Code, "@cached"))
	assertSubstrings(t, src, chunks)
}

func TestGoAST(t *testing.T) {
	src := `package sample

import "fmt"

// User represents a user in the system
type User struct {
	ID   int
	Name string
}

type (
	Reader interface{ Read() string }
	Name   string
)

type Level int

const (
	LevelLow Level = iota
	LevelHigh
)

const answer = 42

// GetName returns the user's name
func (u *User) GetName() string {
	return u.Name
}

func NewUser(id int, name string) *User {
	fmt.Println(id)
	return &User{ID: id, Name: name}
}
`
	chunks, err := NewGoAST().TryExtract(context.Background(), []byte(src), "sample.go")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"class:User",
		"interface:Reader",
		"type_alias:Name",
		"type_alias:Level",
		"enum:Level",
		"function:User.GetName",
		"function:NewUser",
	}, kindsAndNames(chunks))
	assert.True(t, strings.HasPrefix(chunks[0].Code, "type User struct"))
	assert.True(t, strings.HasPrefix(chunks[5].Code, "func (u *User) GetName()"))
	assertSubstrings(t, src, chunks)
}

func TestGoAST_SyntaxError(t *testing.T) {
	_, err := NewGoAST().TryExtract(context.Background(), []byte("package x\nfunc broken( {\n"), "x.go")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestBraceHeuristic(t *testing.T) {
	src := `export default {
  name: 'x',
}

function helper(a, b) {
  if (a) { return b; }
  return "}";
}

interface Shape {
  area(): number
}
`
	chunks, err := BraceHeuristic{}.TryExtract(context.Background(), []byte(src), "legacy.js")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"exported_declaration:anonymous",
		"function:helper",
		"interface:Shape",
	}, kindsAndNames(chunks))
	assert.Equal(t, "export default {\n  name: 'x',\n}", chunks[0].Code)
	assert.Equal(t, "function helper(a, b) {\n  if (a) { return b; }\n  return \"}\";\n}", chunks[1].Code)
	assertSubstrings(t, src, chunks)
}

func TestBraceHeuristic_Go(t *testing.T) {
	src := "func (s *Server) Start() error {\n\treturn nil\n}\n\ntype ID string\n"

	chunks, err := BraceHeuristic{}.TryExtract(context.Background(), []byte(src), "server.go")
	require.NoError(t, err)

	assert.Equal(t, []string{"function:Server.Start", "type_alias:ID"}, kindsAndNames(chunks))
	assert.Equal(t, "type ID string", chunks[1].Code)
}

func TestBraceHeuristic_NothingFound(t *testing.T) {
	_, err := BraceHeuristic{}.TryExtract(context.Background(), []byte("  just text\n"), "notes.txt")
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestIndentHeuristic(t *testing.T) {
	src := `import os

class Greeter:
    def hello(self):
        # comment
        return "hi"

# top comment
@cached
def compute(x,
            y):
    return x + y

value = 3
`
	chunks, err := IndentHeuristic{}.TryExtract(context.Background(), []byte(src), "mod.py")
	require.NoError(t, err)

	assert.Equal(t, []string{"class:Greeter", "function:compute"}, kindsAndNames(chunks))
	assert.Equal(t, "class Greeter:\n    def hello(self):\n        # comment\n        return \"hi\"", chunks[0].Code)
	assert.Equal(t, "@cached\ndef compute(x,\n            y):\n    return x + y", chunks[1].Code)
	assertSubstrings(t, src, chunks)
}

func TestIndentHeuristic_Empty(t *testing.T) {
	_, err := IndentHeuristic{}.TryExtract(context.Background(), []byte("\n\n# only comments\n"), "empty.py")
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestWholeFile(t *testing.T) {
	content := strings.Repeat("é", types.MaxChunkChars+10)

	chunks, err := WholeFile{}.TryExtract(context.Background(), []byte(content), "dir/big.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, types.KindFile, chunks[0].Kind)
	assert.Equal(t, "big.txt", chunks[0].Name)
	assert.Equal(t, types.MaxChunkChars, len([]rune(chunks[0].Code)))
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		path   string
		family string
	}{
		{"a.js", "javascript"},
		{"a.MJS", "javascript"},
		{"a.ts", "typescript"},
		{"a.tsx", "tsx"},
		{"a.py", "python"},
		{"a.go", "go"},
		{"README", "plain"},
		{"a.rb", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.family, r.Lookup(tt.path).Name)
		})
	}

	assert.Contains(t, r.Extensions(), ".py")
	assert.Contains(t, r.Extensions(), ".tsx")
}

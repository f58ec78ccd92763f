package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/index.ts":               "export const a = 1",
		"src/view.tsx":               "export function View() {}",
		"src/legacy.js":              "function old() {}",
		"lib/util.py":                "def util(): pass",
		"cmd/main.go":                "package main",
		"README.md":                  "# readme",
		"src/empty.ts":               "",
		"node_modules/pkg/index.js":  "module.exports = 1",
		"vendor/dep/dep.go":          "package dep",
		"dist/bundle.js":             "!function(){}",
		"lib/__pycache__/util.pyi":   "x",
		".git/hooks/pre-commit.py":   "print(1)",
		".code-connoisseur/cache.js": "1",
	})

	l, err := New(root)
	require.NoError(t, err)

	files, err := l.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cmd/main.go",
		"lib/util.py",
		"src/index.ts",
		"src/legacy.js",
		"src/view.tsx",
	}, files)
}

func TestWalkIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		IgnoreFile:               "# generated code\ngenerated/\n*.test.ts\nscripts/tool.py\n",
		"src/app.ts":             "class App {}",
		"src/app.test.ts":        "test('x', () => {})",
		"generated/api.ts":       "export {}",
		"scripts/tool.py":        "def tool(): pass",
		"scripts/keep.py":        "def keep(): pass",
		"src/generated/model.ts": "export {}",
	})

	l, err := New(root)
	require.NoError(t, err)

	files, err := l.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"scripts/keep.py", "src/app.ts"}, files)
}

func TestWalkSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real.ts": "const x = 1"})
	if err := os.Symlink(filepath.Join(root, "real.ts"), filepath.Join(root, "link.ts")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	l, err := New(root)
	require.NoError(t, err)
	files, err := l.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"real.ts"}, files)
}

func TestWithOptions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go":        "package a",
		"b.ts":        "let b",
		"skip/c.go":   "package c",
		"nested/d.GO": "package d",
	})

	l, err := New(root, WithExtensions("go"), WithIgnores("skip"))
	require.NoError(t, err)
	files, err := l.Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "nested/d.GO"}, files)
}

func TestLoadAll(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"one.py": "def one(): return 1",
		"two.py": "def two(): return 2",
	})

	l, err := New(root)
	require.NoError(t, err)
	files, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "one.py", files[0].Path)
	assert.Equal(t, "def one(): return 1", string(files[0].Content))
}

func TestNewRejectsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := New(path)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = New(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWalkCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.ts": "let a"})

	l, err := New(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Walk(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

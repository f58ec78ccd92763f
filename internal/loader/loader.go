package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// IgnoreFile holds extra ignore patterns, one per line, at the project root
const IgnoreFile = ".connoisseurignore"

// DefaultExtensions are the source extensions indexed when none are configured
var DefaultExtensions = []string{
	".js", ".jsx", ".mjs", ".cjs",
	".ts", ".mts", ".cts", ".tsx",
	".py", ".pyi",
	".go",
}

// DefaultIgnores are directory names never descended into
var DefaultIgnores = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"__pycache__",
	".code-connoisseur",
}

// ErrNotDirectory is returned when the project root is not a directory
var ErrNotDirectory = errors.New("project root is not a directory")

// Loader discovers and reads the source files of a project
type Loader struct {
	root       string
	extensions map[string]bool
	ignores    []string
	logger     *zap.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithExtensions replaces the indexed extensions
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		l.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			l.extensions[strings.ToLower(e)] = true
		}
	}
}

// WithIgnores adds ignore patterns to the defaults
func WithIgnores(patterns ...string) Option {
	return func(l *Loader) {
		l.ignores = append(l.ignores, patterns...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loader for the project at root. Patterns from IgnoreFile,
// when present, are added to the default ignores.
func New(root string, opts ...Option) (*Loader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	l := &Loader{
		root:    abs,
		ignores: append([]string(nil), DefaultIgnores...),
		logger:  zap.NewNop(),
	}
	WithExtensions(DefaultExtensions...)(l)
	for _, opt := range opts {
		opt(l)
	}

	patterns, err := readIgnoreFile(filepath.Join(abs, IgnoreFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	l.ignores = append(l.ignores, patterns...)
	return l, nil
}

// Root returns the absolute project root
func (l *Loader) Root() string {
	return l.root
}

// Walk returns the slash-separated paths, relative to the root, of every
// indexable file in lexical order
func (l *Loader) Walk(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Debug("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == l.root {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if l.ignored(d.Name(), rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks and other non-regular files
		if !d.Type().IsRegular() {
			return nil
		}
		if !l.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if l.ignored(d.Name(), rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() == 0 {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Load reads one file by its relative path
func (l *Loader) Load(rel string) (types.SourceFile, error) {
	content, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		return types.SourceFile{}, err
	}
	return types.SourceFile{Path: rel, Content: content}, nil
}

// LoadAll walks the project and reads every file. Files that disappear or
// cannot be read between the walk and the read are logged and skipped.
func (l *Loader) LoadAll(ctx context.Context) ([]types.SourceFile, error) {
	paths, err := l.Walk(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]types.SourceFile, 0, len(paths))
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := l.Load(rel)
		if err != nil {
			l.logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// ignored checks a name or relative path against every pattern: exact name,
// path prefix, or glob against either. A trailing slash limits a pattern to
// directories.
func (l *Loader) ignored(name, rel string, isDir bool) bool {
	for _, p := range l.ignores {
		if strings.HasSuffix(p, "/") {
			if !isDir {
				continue
			}
			p = strings.TrimSuffix(p, "/")
		}
		if p == "" {
			continue
		}
		if name == p || rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
		if matched, _ := filepath.Match(p, rel); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

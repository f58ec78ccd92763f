package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/workspace"
)

const (
	// ServerName is the MCP server name
	ServerName = "code-connoisseur"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// OpenFunc builds the workspace for an absolute project root
type OpenFunc func(root string) (*workspace.Workspace, error)

// Server wraps the MCP server with one workspace per project path
type Server struct {
	mcp        *server.MCPServer
	logger     *zap.Logger
	configPath string
	open       OpenFunc

	mu         sync.Mutex
	workspaces map[string]*workspace.Workspace
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConfigPath makes every project use the config file at path instead of
// its own .code-connoisseur/config.yaml
func WithConfigPath(path string) Option {
	return func(s *Server) {
		s.configPath = path
	}
}

// WithOpener replaces how workspaces are built
func WithOpener(open OpenFunc) Option {
	return func(s *Server) {
		if open != nil {
			s.open = open
		}
	}
}

// NewServer creates a new MCP server instance
func NewServer(version string, opts ...Option) (*Server, error) {
	if version == "" {
		version = ServerVersion
	}

	s := &Server{
		logger:     zap.NewNop(),
		workspaces: make(map[string]*workspace.Workspace),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.open == nil {
		s.open = func(root string) (*workspace.Workspace, error) {
			return workspace.Open(root, s.configPath, s.logger)
		}
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
	)

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases every open workspace
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for root, w := range s.workspaces {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", root, err))
		}
		delete(s.workspaces, root)
	}
	return errors.Join(errs...)
}

// workspace returns the cached workspace for root, opening it on first use
func (s *Server) workspace(root string) (*workspace.Workspace, error) {
	root = filepath.Clean(root)

	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workspaces[root]; ok {
		return w, nil
	}
	w, err := s.open(root)
	if err != nil {
		return nil, err
	}
	s.workspaces[root] = w
	s.logger.Info("opened workspace", zap.String("root", root))
	return w, nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/indexer"
	"github.com/dshills/code-connoisseur/internal/loader"
	"github.com/dshills/code-connoisseur/internal/searcher"
	"github.com/dshills/code-connoisseur/internal/storage"
	"github.com/dshills/code-connoisseur/internal/workspace"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path is not a readable directory
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedCode bounds the code excerpt returned per search result
const maxReportedCode = 2000

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	w, err := s.workspaceFor(args)
	if err != nil {
		return nil, err
	}
	index, err := indexArg(args)
	if err != nil {
		return nil, err
	}

	stats, err := w.Index(ctx, index)
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"path": w.Root,
		})
	case errors.Is(err, loader.ErrNotDirectory):
		return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{
			"path": w.Root,
		})
	case err != nil:
		s.logger.Error("indexing failed", zap.String("root", w.Root), zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":          true,
		"index":            stats.Index,
		"files_indexed":    stats.FilesIndexed,
		"files_fallback":   stats.FilesFallback,
		"chunks_created":   stats.ChunksCreated,
		"batches_written":  stats.BatchesWritten,
		"strategies":       stats.Strategies,
		"fallback_reasons": stats.Reasons,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if stats.Metadata != nil {
		response["storage_root"] = stats.Metadata.StorageRoot
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > searcher.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxTopK), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	w, err := s.workspaceFor(args)
	if err != nil {
		return nil, err
	}
	index, err := indexArg(args)
	if err != nil {
		return nil, err
	}

	status, err := w.Status(ctx, index)
	if err != nil {
		return nil, internalError("failed to get index status", err)
	}
	if !status.Indexed {
		response := map[string]interface{}{
			"query":         query,
			"index":         status.Index,
			"indexed":       false,
			"total_results": 0,
			"results":       []map[string]interface{}{},
			"message":       "Index not found. Use index_codebase tool to index this project.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	resp, err := w.Search(ctx, query, index, limit)
	if err != nil {
		return nil, internalError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":  i + 1,
			"id":    r.ID,
			"score": r.Score,
			"path":  r.Metadata.Path,
			"kind":  r.Metadata.Kind,
			"name":  r.Metadata.Name,
			"code":  excerpt(r.Metadata.Code),
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"index":         resp.Index,
		"indexed":       true,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	w, err := s.workspaceFor(args)
	if err != nil {
		return nil, err
	}
	index, err := indexArg(args)
	if err != nil {
		return nil, err
	}

	status, err := w.Status(ctx, index)
	if err != nil {
		return nil, internalError("failed to get index status", err)
	}

	response := map[string]interface{}{
		"indexed":     status.Indexed,
		"path":        w.Root,
		"index":       status.Index,
		"in_progress": status.InProgress,
	}
	if !status.Indexed {
		response["message"] = "Index not found. Use index_codebase tool to index this project."
	}
	if loc := status.Location; loc != nil {
		md := loc.Metadata
		response["metadata"] = map[string]interface{}{
			"chunk_count":    md.ChunkCount,
			"dimension":      md.Dimension,
			"metric":         md.Metric,
			"provider":       md.Provider,
			"model":          md.Model,
			"format_version": md.FormatVersion,
			"batch_count":    md.BatchCount,
			"storage_root":   loc.Root,
			"found_in":       loc.Source,
			"created_at":     md.CreatedAt.Format(time.RFC3339),
			"updated_at":     md.UpdatedAt.Format(time.RFC3339),
		}
	}
	if run := status.LastRun; run != nil {
		response["last_run"] = map[string]interface{}{
			"files_indexed":    run.FilesIndexed,
			"files_fallback":   run.FilesFallback,
			"chunks_created":   run.ChunksCreated,
			"strategies":       run.Strategies,
			"fallback_reasons": run.Reasons,
			"duration_ms":      run.Duration.Milliseconds(),
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// workspaceFor validates the path argument and returns its workspace
func (s *Server) workspaceFor(args map[string]interface{}) (*workspace.Workspace, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotDirectory) {
			code = ErrorCodeProjectNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	w, err := s.workspace(path)
	if err != nil {
		return nil, internalError("failed to open project", err)
	}
	return w, nil
}

// indexArg returns the optional index argument, validated when present
func indexArg(args map[string]interface{}) (string, error) {
	index := getStringDefault(args, "index", "")
	if index == "" {
		return "", nil
	}
	if err := storage.ValidateIndexName(index); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid index name", map[string]interface{}{
			"param":  "index",
			"reason": err.Error(),
		})
	}
	return index, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func internalError(message string, err error) error {
	return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// excerpt shortens code for transport, cutting on a rune boundary
func excerpt(code string) string {
	r := []rune(code)
	if len(r) <= maxReportedCode {
		return code
	}
	return string(r[:maxReportedCode]) + "\n..."
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

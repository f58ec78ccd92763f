package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/code-connoisseur/internal/searcher"
)

func indexProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Index name (letters, digits, '.', '_', '-'); defaults to the project's configured index",
	}
}

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Split a codebase into semantic chunks, embed them and store them in a local vector index. Re-running replaces the index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"index": indexProperty(),
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Find the code chunks most similar to a natural language or code query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the indexed project",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or code)",
				},
				"index": indexProperty(),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return",
					"default":     searcher.DefaultTopK,
					"minimum":     1,
					"maximum":     searcher.MaxTopK,
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report whether a project index exists, its size and the last indexing run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project",
				},
				"index": indexProperty(),
			},
			Required: []string{"path"},
		},
	}
}

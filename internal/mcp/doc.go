// Package mcp implements the Model Context Protocol (MCP) server.
//
// The server exposes three tools over stdio:
//   - index_codebase: chunk, embed and store a project under a named index
//   - search_code: return the chunks most similar to a query
//   - get_status: report whether an index exists and what the last run did
//
// Searching an index that does not exist returns no results with
// "indexed": false rather than an error.
//
// Every tool takes an absolute project path. The server keeps one
// workspace per path, built from that project's .code-connoisseur/config.yaml
// and the process environment, so several projects can be served at once.
//
// # Example
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "where are invoices totalled",
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "index": "main",
//	  "total_results": 1,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.82,
//	      "path": "billing/invoice.py",
//	      "kind": "class",
//	      "name": "Invoice",
//	      "code": "class Invoice: ..."
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Handlers return *MCPError values carrying JSON-RPC style codes:
//   - -32602: invalid params
//   - -32603: internal error
//   - -32001: project path missing or not a directory
//   - -32002: indexing already in progress
//   - -32004: empty query
//
// Logs go to stderr; stdout is reserved for the protocol.
package mcp

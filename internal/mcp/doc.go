// Package mcp exposes the dev-log service as MCP tools.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls devlog.Service directly. Tools: add_log, get_log, list_logs,
// search_logs, delete_log, get_project_context and reindex_log. Tool errors
// are reported in the result (IsError) with the service error text, e.g.
// "validation error: title is required".
package mcp

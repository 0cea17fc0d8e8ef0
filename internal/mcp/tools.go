package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"askcode/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuestion = -32001 // Question parameter is empty
)

// handleAskCode handles the ask_code tool invocation
func (s *Server) handleAskCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question, ok := args["question"].(string)
	if !ok || question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuestion, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}
	includeFragments := getBoolDefault(args, "include_fragments", false)

	resp, err := s.engine.Ask(ctx, question)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ask failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"answer":       resp.Answer,
		"category":     resp.Category,
		"inconclusive": resp.Inconclusive,
	}
	if includeFragments {
		response["fragments"] = fragmentSummaries(resp.Fragments, 0)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question, ok := args["question"].(string)
	if !ok || question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuestion, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 15)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	results, qc, err := s.engine.Search(ctx, question)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"category":  qc.Category,
		"keywords":  qc.Keywords,
		"symbols":   qc.Symbols,
		"fragments": fragmentSummaries(results, limit),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStats handles the index_stats tool invocation
func (s *Server) handleIndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count, err := s.counter.Count(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to query vector store", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"fragments": count,
		"healthy":   count > 0,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// fragmentSummaries converts scored fragments to a compact wire shape.
func fragmentSummaries(results []types.ScoredFragment, limit int) []map[string]interface{} {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		entry := map[string]interface{}{
			"file_path":  r.FilePath,
			"start_line": r.StartLine,
			"end_line":   r.EndLine,
			"signature":  r.Signature,
			"channel":    r.Channel,
			"score":      r.FinalScore,
		}
		if r.HasDistance {
			entry["distance"] = r.Distance
		}
		out = append(out, entry)
	}
	return out
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
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

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
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

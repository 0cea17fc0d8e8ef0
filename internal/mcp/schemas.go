package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// askCodeTool returns the tool definition for ask_code
func askCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_code",
		Description: "Answer a natural-language question about the indexed codebase using retrieved code fragments",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language question about the codebase",
				},
				"include_fragments": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include the supporting code fragments in the response",
					"default":     false,
				},
			},
			Required: []string{"question"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Run multi-channel retrieval and re-ranking for a question, returning scored fragments without answer synthesis",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of fragments to return (1-100)",
					"default":     15,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"question"},
		},
	}
}

// indexStatsTool returns the tool definition for index_stats
func indexStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_stats",
		Description: "Report the number of fragments available in the vector store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

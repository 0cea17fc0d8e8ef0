// Package mcp implements the Model Context Protocol (MCP) server for askcode.
//
// The MCP server exposes three tools to AI coding assistants:
//   - ask_code: Answer a natural-language question using retrieved fragments
//   - search_code: Run retrieval and re-ranking without answer synthesis
//   - index_stats: Report the fragment count in the vector store
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. The server listens
// on stdin for protocol messages and writes responses to stdout, making it
// simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The server is typically started via the mcp subcommand:
//
//	askcode mcp
//
// # Tool: ask_code
//
//	Request:
//	{
//	  "name": "ask_code",
//	  "arguments": {
//	    "question": "how does the retry policy handle rate limits?",
//	    "include_fragments": true
//	  }
//	}
//
// The response carries the synthesized answer, the detected question
// category, and an inconclusive flag when the confidence gate rejected
// the retrieved evidence.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "question": "load balancer weight update",
//	    "limit": 15
//	  }
//	}
//
// The response lists scored fragments with file locations, channels, and
// distances, plus the extracted keywords and symbols.
package mcp

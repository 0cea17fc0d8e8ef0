package mcp

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"askcode/internal/engine"
	"askcode/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "askcode-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Asker is the question-answering surface the server exposes.
type Asker interface {
	Ask(ctx context.Context, question string) (*engine.Response, error)
	Search(ctx context.Context, question string) ([]types.ScoredFragment, types.QueryContext, error)
}

// Counter reports the number of indexed fragments.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	engine  Asker
	counter Counter
}

// NewServer creates a new MCP server instance around an engine.
func NewServer(eng Asker, counter Counter) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		engine:  eng,
		counter: counter,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until the context is
// cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(askCodeTool(), s.handleAskCode)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(indexStatsTool(), s.handleIndexStats)
}

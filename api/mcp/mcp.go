// Package mcp provides an MCP (Model Context Protocol) server for the engram memory layer.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/utils"
)

type Config struct {
	// Manager is the memory manager backing the tools
	Manager *memory.Manager

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "engram",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Manager == nil {
		return nil, errors.New("memory manager is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        addMemoriesToolName,
		Description: addMemoriesDescription,
	}, s.handleAddMemories)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchMemoryToolName,
		Description: searchMemoryDescription,
	}, s.handleSearchMemory)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listMemoriesToolName,
		Description: listMemoriesDescription,
	}, s.handleListMemories)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        deleteAllMemoriesToolName,
		Description: deleteAllMemoriesDescription,
	}, s.handleDeleteAllMemories)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

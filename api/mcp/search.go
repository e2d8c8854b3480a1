package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/scope"
)

var (
	searchMemoryToolName    = "search_memory"
	searchMemoryDescription = "Search stored memories using semantic search. Returns the most relevant memories for the query text within the given user, agent, or run scope. Call this before answering questions about the user to ground the response in what is already known."
)

// SearchMemoryInput represents the input arguments for the search_memory tool.
type SearchMemoryInput struct {
	Query   string `json:"query" jsonschema:"the search query text to find relevant memories"`
	UserID  string `json:"user_id,omitempty" jsonschema:"the user whose memories to search"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"the agent whose memories to search"`
	RunID   string `json:"run_id,omitempty" jsonschema:"the run/session whose memories to search"`
	Limit   int    `json:"limit,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// handleSearchMemory processes a search request.
func (s *Server) handleSearchMemory(ctx context.Context, _ *mcp.CallToolRequest, input SearchMemoryInput) (*mcp.CallToolResult, memory.SearchResult, error) {
	logger := s.config.Logger

	if input.Query == "" {
		return toolError("query is required"), memory.SearchResult{}, nil
	}

	sc := scope.Scope{UserID: input.UserID, AgentID: input.AgentID, RunID: input.RunID}
	if err := sc.Validate(); err != nil {
		return toolError(err.Error()), memory.SearchResult{}, nil
	}

	logger.Debug("MCP search request",
		"query", input.Query,
		"limit", input.Limit,
	)

	result, err := s.config.Manager.Search(ctx, input.Query, sc, input.Limit)
	if err != nil {
		logger.Error("mcp search failed", "error", err)
		return toolError(fmt.Sprintf("Search failed: %v", err)), memory.SearchResult{}, nil
	}

	return toolResult(*result)
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/scope"
)

var (
	addMemoriesToolName    = "add_memories"
	addMemoriesDescription = "Store information about the user from the conversation. Extracts durable facts from the given messages, reconciles them against existing memories, and records the result. Use this whenever the user shares preferences, details about themselves, or other information worth remembering."

	listMemoriesToolName    = "list_memories"
	listMemoriesDescription = "List all memories stored for the given user, agent, or run scope."

	deleteAllMemoriesToolName    = "delete_all_memories"
	deleteAllMemoriesDescription = "Delete every memory in the given user, agent, or run scope. This cannot be undone."
)

// AddMemoriesInput represents the input arguments for the add_memories tool.
type AddMemoriesInput struct {
	Messages []llm.Message `json:"messages" jsonschema:"the conversation messages to extract memories from"`
	UserID   string        `json:"user_id,omitempty" jsonschema:"the user the memories belong to"`
	AgentID  string        `json:"agent_id,omitempty" jsonschema:"the agent the memories belong to"`
	RunID    string        `json:"run_id,omitempty" jsonschema:"the run/session the memories belong to"`
}

// ListMemoriesInput represents the input arguments for the list_memories tool.
type ListMemoriesInput struct {
	UserID  string `json:"user_id,omitempty" jsonschema:"the user whose memories to list"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"the agent whose memories to list"`
	RunID   string `json:"run_id,omitempty" jsonschema:"the run/session whose memories to list"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of memories to return (default: all)"`
}

// ListMemoriesOutput represents the structured output of a memory listing.
type ListMemoriesOutput struct {
	Results []memory.Item `json:"results"`
	Total   int           `json:"total"`
}

// DeleteAllMemoriesInput represents the input arguments for the delete_all_memories tool.
type DeleteAllMemoriesInput struct {
	UserID  string `json:"user_id,omitempty" jsonschema:"the user whose memories to delete"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"the agent whose memories to delete"`
	RunID   string `json:"run_id,omitempty" jsonschema:"the run/session whose memories to delete"`
}

// DeleteAllMemoriesOutput represents the structured output of a scoped delete.
type DeleteAllMemoriesOutput struct {
	Deleted int `json:"deleted"`
}

// handleAddMemories processes an add_memories request via MCP.
func (s *Server) handleAddMemories(ctx context.Context, _ *mcp.CallToolRequest, input AddMemoriesInput) (*mcp.CallToolResult, memory.AddResult, error) {
	if len(input.Messages) == 0 {
		return toolError("messages are required"), memory.AddResult{}, nil
	}

	sc := scope.Scope{UserID: input.UserID, AgentID: input.AgentID, RunID: input.RunID}
	if err := sc.Validate(); err != nil {
		return toolError(err.Error()), memory.AddResult{}, nil
	}

	result, err := s.config.Manager.Add(ctx, input.Messages, memory.AddOptions{Scope: sc})
	if err != nil {
		s.config.Logger.Error("mcp add memories failed", "error", err)
		return toolError(fmt.Sprintf("Adding memories failed: %v", err)), memory.AddResult{}, nil
	}

	return toolResult(*result)
}

// handleListMemories processes a list_memories request via MCP.
func (s *Server) handleListMemories(ctx context.Context, _ *mcp.CallToolRequest, input ListMemoriesInput) (*mcp.CallToolResult, ListMemoriesOutput, error) {
	sc := scope.Scope{UserID: input.UserID, AgentID: input.AgentID, RunID: input.RunID}
	if err := sc.Validate(); err != nil {
		return toolError(err.Error()), ListMemoriesOutput{}, nil
	}

	items, total, err := s.config.Manager.GetAll(ctx, sc, input.Limit)
	if err != nil {
		s.config.Logger.Error("mcp list memories failed", "error", err)
		return toolError(fmt.Sprintf("Listing memories failed: %v", err)), ListMemoriesOutput{}, nil
	}

	if items == nil {
		items = []memory.Item{}
	}

	return toolResult(ListMemoriesOutput{Results: items, Total: total})
}

// handleDeleteAllMemories processes a delete_all_memories request via MCP.
func (s *Server) handleDeleteAllMemories(ctx context.Context, _ *mcp.CallToolRequest, input DeleteAllMemoriesInput) (*mcp.CallToolResult, DeleteAllMemoriesOutput, error) {
	sc := scope.Scope{UserID: input.UserID, AgentID: input.AgentID, RunID: input.RunID}
	if err := sc.Validate(); err != nil {
		return toolError(err.Error()), DeleteAllMemoriesOutput{}, nil
	}

	deleted, err := s.config.Manager.DeleteAll(ctx, sc)
	if err != nil {
		s.config.Logger.Error("mcp delete all memories failed", "error", err)
		return toolError(fmt.Sprintf("Deleting memories failed: %v", err)), DeleteAllMemoriesOutput{}, nil
	}

	return toolResult(DeleteAllMemoriesOutput{Deleted: deleted})
}

// toolError builds an error CallToolResult with the given message.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

// toolResult serializes the structured output as JSON for the text field.
// Per MCP spec: tools returning structured content should also return
// serialized JSON in a TextContent block for backwards compatibility.
func toolResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

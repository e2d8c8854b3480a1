package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/scope"
	"github.com/engramlabs/engram/pkg/worker"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AddMemoriesRequest is the body for POST /v1/memories.
type AddMemoriesRequest struct {
	Messages []llm.Message  `json:"messages"`
	UserID   string         `json:"user_id,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Raw stores messages verbatim, skipping fact extraction.
	Raw bool `json:"raw,omitempty"`

	// Async enqueues the request onto the ingestion worker pool and
	// returns 202 without waiting for reconciliation to complete.
	Async bool `json:"async,omitempty"`
}

// SearchMemoriesRequest is the body for POST /v1/memories/search.
type SearchMemoriesRequest struct {
	Query   string `json:"query"`
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// UpdateMemoryRequest is the body for PUT /v1/memories/:id.
type UpdateMemoryRequest struct {
	Memory string `json:"memory"`
}

// ListMemoriesResponse is the body for GET /v1/memories.
type ListMemoriesResponse struct {
	Results []memory.Item `json:"results"`
	Total   int           `json:"total"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleAddMemories ingests conversation messages into the memory layer.
func (s *Server) handleAddMemories(c *fiber.Ctx) error {
	var req AddMemoriesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "messages are required"})
	}

	sc := scope.Scope{UserID: req.UserID, AgentID: req.AgentID, RunID: req.RunID}
	if err := sc.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	opts := memory.AddOptions{
		Scope:    sc,
		Metadata: req.Metadata,
		Raw:      req.Raw,
	}

	if req.Async {
		if s.pool == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "async ingestion is not configured"})
		}
		if !s.pool.Enqueue(worker.Job{Messages: req.Messages, Options: opts}) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "ingestion queue is full"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
	}

	result, err := s.manager.Add(c.Context(), req.Messages, opts)
	if err != nil {
		s.logger.Error("add memories failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(result)
}

// handleSearchMemories runs a semantic search over stored memories.
func (s *Server) handleSearchMemories(c *fiber.Ctx) error {
	var req SearchMemoriesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}

	sc := scope.Scope{UserID: req.UserID, AgentID: req.AgentID, RunID: req.RunID}
	if err := sc.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	result, err := s.manager.Search(c.Context(), req.Query, sc, req.Limit)
	if err != nil {
		s.logger.Error("search memories failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(result)
}

// handleListMemories returns all memories in a scope.
// Query parameters: user_id, agent_id, run_id, limit.
func (s *Server) handleListMemories(c *fiber.Ctx) error {
	sc := scope.Scope{
		UserID:  c.Query("user_id"),
		AgentID: c.Query("agent_id"),
		RunID:   c.Query("run_id"),
	}
	if err := sc.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = parsed
	}

	items, total, err := s.manager.GetAll(c.Context(), sc, limit)
	if err != nil {
		s.logger.Error("list memories failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(ListMemoriesResponse{Results: items, Total: total})
}

// handleGetMemory returns a single memory by id.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id := c.Params("id")

	item, err := s.manager.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "memory not found"})
		}
		s.logger.Error("get memory failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(item)
}

// handleMemoryHistory returns the change history for a memory, most recent first.
func (s *Server) handleMemoryHistory(c *fiber.Ctx) error {
	id := c.Params("id")

	records, err := s.manager.History(c.Context(), id)
	if err != nil {
		s.logger.Error("memory history failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{
		"memory_id": id,
		"history":   records,
	})
}

// handleUpdateMemory replaces the text of a memory.
func (s *Server) handleUpdateMemory(c *fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Memory == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "memory text is required"})
	}

	mutation, err := s.manager.Update(c.Context(), id, req.Memory)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "memory not found"})
		}
		s.logger.Error("update memory failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(mutation)
}

// handleDeleteMemory soft-deletes a single memory.
func (s *Server) handleDeleteMemory(c *fiber.Ctx) error {
	id := c.Params("id")

	mutation, err := s.manager.Delete(c.Context(), id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "memory not found"})
		}
		s.logger.Error("delete memory failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(mutation)
}

// handleDeleteAllMemories soft-deletes every memory in a scope.
// Query parameters: user_id, agent_id, run_id.
func (s *Server) handleDeleteAllMemories(c *fiber.Ctx) error {
	sc := scope.Scope{
		UserID:  c.Query("user_id"),
		AgentID: c.Query("agent_id"),
		RunID:   c.Query("run_id"),
	}
	if err := sc.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	deleted, err := s.manager.DeleteAll(c.Context(), sc)
	if err != nil {
		s.logger.Error("delete all memories failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/worker"
)

// Server is the API server for managing and querying the engram memory layer.
type Server struct {
	config  Config
	manager *memory.Manager
	pool    *worker.Pool
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new API server.
// The manager is injected to allow sharing with other components.
// The pool is optional; when nil, async ingestion requests are rejected.
// The mcpHandler is optional; when non-nil it is mounted at /mcp.
func NewServer(config Config, manager *memory.Manager, pool *worker.Pool, mcpHandler http.Handler, logger *slog.Logger) (*Server, error) {
	if manager == nil {
		return nil, errors.New("memory manager is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		manager: manager,
		pool:    pool,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/memories", s.handleAddMemories)
	v1.Post("/memories/search", s.handleSearchMemories)
	v1.Get("/memories", s.handleListMemories)
	v1.Get("/memories/:id", s.handleGetMemory)
	v1.Get("/memories/:id/history", s.handleMemoryHistory)
	v1.Put("/memories/:id", s.handleUpdateMemory)
	v1.Delete("/memories/:id", s.handleDeleteMemory)
	v1.Delete("/memories", s.handleDeleteAllMemories)

	if mcpHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

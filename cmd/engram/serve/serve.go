// Package servecmder provides the serve command for running the engram
// memory API server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/api/mcp"
	"github.com/engramlabs/engram/pkg/categorizer"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/dotdir"
	embeddingutils "github.com/engramlabs/engram/pkg/embeddings/utils"
	eventstreamutils "github.com/engramlabs/engram/pkg/eventstream/utils"
	"github.com/engramlabs/engram/pkg/graph"
	graphutils "github.com/engramlabs/engram/pkg/graph/utils"
	historyutils "github.com/engramlabs/engram/pkg/history/utils"
	llmutils "github.com/engramlabs/engram/pkg/llm/utils"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/memory"
	vectorutils "github.com/engramlabs/engram/pkg/vector/utils"
	"github.com/engramlabs/engram/pkg/worker"
)

// serveFlags is the flag registry for the serve command. Every flag maps to
// a dotted viper key so the precedence chain (flag > env > file > default)
// applies uniformly.
var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name: "listen", Shorthand: "l", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagStorageProv: {
		Name: "storage-provider", ViperKey: "storage.provider",
		Description: "History ledger provider (inmemory, sqlite, postgres)",
	},
	config.FlagStorageTgt: {
		Name: "storage-target", ViperKey: "storage.target",
		Description: "History ledger target (file path or connection string)",
	},
	config.FlagLLMProv: {
		Name: "llm-provider", ViperKey: "llm.provider",
		Description: "LLM provider type (openai, ollama)",
	},
	config.FlagLLMTgt: {
		Name: "llm-target", ViperKey: "llm.target",
		Description: "LLM provider base URL",
	},
	config.FlagLLMModel: {
		Name: "llm-model", ViperKey: "llm.model",
		Description: "Model used for extraction and reconciliation decisions",
	},
	config.FlagLLMKey: {
		Name: "llm-api-key", ViperKey: "llm.api_key",
		Description: "API key for the LLM provider",
	},
	config.FlagEmbeddingProv: {
		Name: "embedding-provider", ViperKey: "embedding.provider",
		Description: "Embedding provider type (openai, ollama)",
	},
	config.FlagEmbeddingTgt: {
		Name: "embedding-target", ViperKey: "embedding.target",
		Description: "Embedding provider base URL",
	},
	config.FlagEmbeddingModel: {
		Name: "embedding-model", ViperKey: "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingKey: {
		Name: "embedding-api-key", ViperKey: "embedding.api_key",
		Description: "API key for the embedding provider",
	},
	config.FlagEmbeddingDims: {
		Name: "embedding-dimensions", ViperKey: "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagVectorStoreProv: {
		Name: "vector-store-provider", ViperKey: "vector_store.provider",
		Description: "Vector store provider (inmemory, sqlitevec, qdrant)",
	},
	config.FlagVectorStoreTgt: {
		Name: "vector-store-target", ViperKey: "vector_store.target",
		Description: "Vector store target (file path or host)",
	},
	config.FlagVectorStoreColl: {
		Name: "vector-store-collection", ViperKey: "vector_store.collection",
		Description: "Vector store collection name",
	},
	config.FlagVectorStoreKey: {
		Name: "vector-store-api-key", ViperKey: "vector_store.api_key",
		Description: "API key for the vector store",
	},
	config.FlagGraphEnabled: {
		Name: "graph", ViperKey: "graph.enabled",
		Description: "Enable the graph memory layer",
	},
	config.FlagGraphProv: {
		Name: "graph-provider", ViperKey: "graph.provider",
		Description: "Graph store provider (inmemory, neo4j)",
	},
	config.FlagGraphTgt: {
		Name: "graph-target", ViperKey: "graph.target",
		Description: "Graph store URI",
	},
	config.FlagGraphUser: {
		Name: "graph-username", ViperKey: "graph.username",
		Description: "Graph store username",
	},
	config.FlagGraphPass: {
		Name: "graph-password", ViperKey: "graph.password",
		Description: "Graph store password",
	},
	config.FlagGraphDB: {
		Name: "graph-database", ViperKey: "graph.database",
		Description: "Graph store database name",
	},
	config.FlagTopK: {
		Name: "top-k", ViperKey: "memory.top_k",
		Description: "Number of nearest memories considered during reconciliation",
	},
	config.FlagWorkers: {
		Name: "workers", ViperKey: "memory.workers",
		Description: "Number of ingestion workers",
	},
	config.FlagEventstreamProv: {
		Name: "eventstream-provider", ViperKey: "eventstream.provider",
		Description: "Mutation event publisher (nop, kafka)",
	},
	config.FlagEventstreamBrkr: {
		Name: "eventstream-brokers", ViperKey: "eventstream.brokers",
		Description: "Comma-separated kafka broker addresses",
	},
	config.FlagEventstreamTopc: {
		Name: "eventstream-topic", ViperKey: "eventstream.topic",
		Description: "Kafka topic for mutation events",
	},
}

// boundFlags lists every registry key the serve command binds into viper.
var boundFlags = []string{
	config.FlagListen,
	config.FlagStorageProv,
	config.FlagStorageTgt,
	config.FlagLLMProv,
	config.FlagLLMTgt,
	config.FlagLLMModel,
	config.FlagLLMKey,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingKey,
	config.FlagEmbeddingDims,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagVectorStoreColl,
	config.FlagVectorStoreKey,
	config.FlagGraphEnabled,
	config.FlagGraphProv,
	config.FlagGraphTgt,
	config.FlagGraphUser,
	config.FlagGraphPass,
	config.FlagGraphDB,
	config.FlagTopK,
	config.FlagWorkers,
	config.FlagEventstreamProv,
	config.FlagEventstreamBrkr,
	config.FlagEventstreamTopc,
}

type ServeCommander struct {
	v      *viper.Viper
	logger *slog.Logger
	debug  bool

	// flag targets; actual values are read through viper after binding
	flagStrings map[string]*string
	flagUints   map[string]*uint
	graphOn     bool
}

const serveLongDesc string = `Run the engram memory API server.

The server exposes the memory layer over HTTP (and MCP at /mcp):
ingesting conversation messages, reconciling extracted facts against
existing memories, semantic search, and per-memory change history.

Configuration comes from flags, ENGRAM_ environment variables, and
config.toml in the .engram/ directory, in that order of precedence.`

const serveShortDesc string = "Run the engram memory API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{
		flagStrings: make(map[string]*string),
		flagUints:   make(map[string]*uint),
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, boundFlags)
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), configDir)
		},
	}

	for _, key := range boundFlags {
		switch key {
		case config.FlagTopK, config.FlagWorkers, config.FlagEmbeddingDims:
			target := new(uint)
			cmder.flagUints[key] = target
			config.AddUintFlag(cmd, serveFlags, key, target)
		case config.FlagGraphEnabled:
			config.AddBoolFlag(cmd, serveFlags, key, &cmder.graphOn)
		default:
			target := new(string)
			cmder.flagStrings[key] = target
			config.AddStringFlag(cmd, serveFlags, key, target)
		}
	}

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, configDir string) error {
	v := c.v

	// Local providers store their files inside the .engram/ directory
	// when no explicit target is configured.
	ddm := dotdir.NewManager()
	dataDir, err := ddm.Target(configDir)
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}

	// pretty output on the terminal, structured JSON in the log file
	logFile, err := os.OpenFile(filepath.Join(dataDir, "engram.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	c.logger = logger.Multi(
		logger.New(logger.WithDebug(c.debug), logger.WithPretty(true)),
		logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(logFile)),
	)

	completer, err := llmutils.NewCompleter(&llmutils.NewCompleterOpts{
		ProviderType: v.GetString("llm.provider"),
		TargetURL:    v.GetString("llm.target"),
		Model:        v.GetString("llm.model"),
		APIKey:       v.GetString("llm.api_key"),
	})
	if err != nil {
		return fmt.Errorf("creating completer: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       v.GetString("embedding.api_key"),
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	vectorTarget := v.GetString("vector_store.target")
	if vectorTarget == "" && v.GetString("vector_store.provider") == "sqlitevec" {
		vectorTarget = filepath.Join(dataDir, "vectors.db")
	}

	store, err := vectorutils.NewStore(ctx, &vectorutils.NewStoreOpts{
		ProviderType: v.GetString("vector_store.provider"),
		Target:       vectorTarget,
		Collection:   v.GetString("vector_store.collection"),
		APIKey:       v.GetString("vector_store.api_key"),
		Dimensions:   v.GetUint("embedding.dimensions"),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}

	storageTarget := v.GetString("storage.target")
	if storageTarget == "" && v.GetString("storage.provider") == "sqlite" {
		storageTarget = filepath.Join(dataDir, "history.db")
	}

	ledger, err := historyutils.NewLedger(ctx, &historyutils.NewLedgerOpts{
		ProviderType: v.GetString("storage.provider"),
		Target:       storageTarget,
	})
	if err != nil {
		return fmt.Errorf("creating history ledger: %w", err)
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: v.GetString("eventstream.provider"),
		Brokers:      strings.Split(v.GetString("eventstream.brokers"), ","),
		Topic:        v.GetString("eventstream.topic"),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}

	var graphReconciler *graph.Reconciler
	if v.GetBool("graph.enabled") {
		graphStore, err := graphutils.NewStore(ctx, &graphutils.NewStoreOpts{
			ProviderType: v.GetString("graph.provider"),
			TargetURL:    v.GetString("graph.target"),
			Username:     v.GetString("graph.username"),
			Password:     v.GetString("graph.password"),
			Database:     v.GetString("graph.database"),
			Logger:       c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating graph store: %w", err)
		}
		graphReconciler = graph.NewReconciler(completer, embedder, graphStore, graph.Config{}, c.logger)
	}

	manager, err := memory.NewManager(memory.Opts{
		Completer:   completer,
		Embedder:    embedder,
		Store:       store,
		Ledger:      ledger,
		Graph:       graphReconciler,
		Categorizer: categorizer.New(completer, categorizer.Config{}, c.logger),
		Publisher:   publisher,
		Config: memory.Config{
			TopK: int(v.GetUint("memory.top_k")),
		},
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating memory manager: %w", err)
	}
	defer manager.Close()

	pool, err := worker.NewPool(&worker.Config{
		Manager:    manager,
		NumWorkers: v.GetUint("memory.workers"),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Manager: manager,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(
		api.Config{ListenAddr: v.GetString("api.listen")},
		manager,
		pool,
		mcpServer.Handler(),
		c.logger,
	)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context canceled, shutting down")
	}

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Error("API server shutdown failed", "error", err)
	}

	// Drain queued ingestion work before closing the manager.
	pool.Close()

	return nil
}

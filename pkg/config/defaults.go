package config

const (
	defaultStorageProvider = "sqlite"

	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "llama3.1"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultVectorProvider   = "sqlitevec"
	defaultVectorCollection = "engram"

	defaultGraphProvider = "neo4j"
	defaultGraphTarget   = "bolt://localhost:7687"
	defaultGraphUsername = "neo4j"
	defaultGraphDatabase = "neo4j"

	defaultMemoryTopK    = 5
	defaultMemoryWorkers = 3

	defaultEventstreamProvider = "nop"
	defaultEventstreamBrokers  = "localhost:9092"
	defaultEventstreamTopic    = "engram.memory.mutations"

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
// Storage.Target and VectorStore.Target are left empty here; when empty,
// serving commands resolve them to files inside the .engram/ directory.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
			Model:    defaultLLMModel,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Graph: GraphConfig{
			Enabled:  false,
			Provider: defaultGraphProvider,
			Target:   defaultGraphTarget,
			Username: defaultGraphUsername,
			Database: defaultGraphDatabase,
		},
		Memory: MemoryConfig{
			TopK:    defaultMemoryTopK,
			Workers: defaultMemoryWorkers,
		},
		Eventstream: EventstreamConfig{
			Provider: defaultEventstreamProvider,
			Brokers:  defaultEventstreamBrokers,
			Topic:    defaultEventstreamTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}

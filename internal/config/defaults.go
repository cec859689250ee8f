package config

import "time"

const defaultDataDir = "/usr/local/var/yomu/data"

// DefaultExtensions are the document types watched when none are configured.
var DefaultExtensions = []string{".pdf", ".docx", ".xlsx", ".pptx", ".odp", ".ods", ".txt", ".md", ".rst"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = defaultDataDir + "/db/yomu.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = defaultDataDir + "/indices/bleve"
	}
	if cfg.Storage.SnapshotPath == "" && cfg.Storage.Backend == BackendMemory {
		cfg.Storage.SnapshotPath = defaultDataDir + "/snapshot.bin"
	}

	if len(cfg.Embedding.Providers) == 0 {
		cfg.Embedding.Providers = []EmbeddingProviderConfig{
			{Name: "onnx", ModelPath: defaultDataDir + "/models/all-MiniLM-L6-v2.onnx", Dimensions: 384, MaxTokens: 256},
		}
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 20
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 2
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}

	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = StrategyText
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}

	if cfg.Retrieval.Mode == "" {
		cfg.Retrieval.Mode = ModeRAG
	}
	if cfg.Retrieval.SmartThreshold == 0 {
		cfg.Retrieval.SmartThreshold = 50000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.3
	}
	if cfg.Retrieval.VectorWeight == 0 && cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.VectorWeight = 0.7
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Retrieval.KeywordBackend == "" {
		cfg.Retrieval.KeywordBackend = KeywordGrep
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Watch.ThreadID == "" {
		cfg.Watch.ThreadID = "watched"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

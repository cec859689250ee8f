// Package config provides configuration loading and structs for the yomu server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// StorageConfig selects the chunk store and where it lives. SnapshotPath is
// only used by the memory backend, which loads it on start and saves on close.
type StorageConfig struct {
	Backend        string `yaml:"backend"`
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	SnapshotPath   string `yaml:"snapshot_path"`
}

// EmbeddingProviderConfig is one entry of the embedding fallback chain.
type EmbeddingProviderConfig struct {
	Name       string `yaml:"name"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	ModelPath  string `yaml:"model_path"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// APIKey reads the provider's key from the environment.
func (p EmbeddingProviderConfig) APIKey() string {
	return envValue(p.APIKeyEnv)
}

// EmbeddingConfig holds the provider chain and batching settings.
type EmbeddingConfig struct {
	Providers         []EmbeddingProviderConfig `yaml:"providers"`
	BatchSize         int                       `yaml:"batch_size"`
	Concurrency       int                       `yaml:"concurrency"`
	RequestsPerSecond float64                   `yaml:"requests_per_second"`
	Timeout           time.Duration             `yaml:"timeout"`
	MaxRetries        int                       `yaml:"max_retries"`
	CacheSize         int                       `yaml:"cache_size"`
}

// LLMConfig configures the text generator used for query enhancement and
// document metadata.
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// APIKey reads the LLM key from the environment.
func (l LLMConfig) APIKey() string {
	return envValue(l.APIKeyEnv)
}

// Chunking strategies.
const (
	StrategyText     = "text"
	StrategySemantic = "semantic"
)

// ChunkingConfig selects the chunker. ChunkSize and ChunkOverlap are in
// characters and apply to the text strategy.
type ChunkingConfig struct {
	Strategy     string         `yaml:"strategy"`
	ChunkSize    int            `yaml:"chunk_size"`
	ChunkOverlap int            `yaml:"chunk_overlap"`
	Semantic     SemanticConfig `yaml:"semantic"`
}

// SemanticConfig holds token budgets for the semantic strategy. Zero values
// take the chunker's defaults.
type SemanticConfig struct {
	ChunkSizeTokens    int     `yaml:"chunk_size_tokens"`
	ChunkOverlapRatio  float64 `yaml:"chunk_overlap_ratio"`
	MinChunkSizeTokens int     `yaml:"min_chunk_size_tokens"`
	MaxChunkSizeTokens int     `yaml:"max_chunk_size_tokens"`
	PreserveSentences  *bool   `yaml:"preserve_sentences"`
	PreserveSections   *bool   `yaml:"preserve_sections"`
}

// Retrieval modes and keyword backends.
const (
	ModeRAG      = "rag"
	ModeFullText = "full-text"
	ModeSmart    = "smart"

	KeywordGrep  = "grep"
	KeywordBleve = "bleve"
)

// RetrievalConfig holds the defaults for context building.
type RetrievalConfig struct {
	Mode            string  `yaml:"mode"`
	SmartThreshold  int     `yaml:"smart_threshold"`
	TopK            int     `yaml:"top_k"`
	MinScore        float64 `yaml:"min_score"`
	UseEnhancement  *bool   `yaml:"use_enhancement"`
	UseHybridSearch *bool   `yaml:"use_hybrid_search"`
	VectorWeight    float64 `yaml:"vector_weight"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	KeywordBackend  string  `yaml:"keyword_backend"`
	Fuzziness       int     `yaml:"fuzziness"`
	IncludeOverview bool    `yaml:"include_overview"`
}

// EnhancementOrDefault returns whether query enhancement is on; true when unset.
func (r *RetrievalConfig) EnhancementOrDefault() bool {
	return boolOr(r.UseEnhancement, true)
}

// HybridOrDefault returns whether hybrid search is on; true when unset.
func (r *RetrievalConfig) HybridOrDefault() bool {
	return boolOr(r.UseHybridSearch, true)
}

// WatchConfig holds directory watch settings. Documents found in Directories
// are ingested into ThreadID.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	ThreadID    string   `yaml:"thread_id"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	return boolOr(w.Recursive, true)
}

func boolOr(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults, expands
// paths and validates the result. A .env file next to the config and one in
// the working directory are loaded into the environment first; variables
// already set are not overridden.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env"), ".env"); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	for i := range cfg.Embedding.Providers {
		cfg.Embedding.Providers[i].ModelPath = expandPath(cfg.Embedding.Providers[i].ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads the given .env files, skipping any that do not exist.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports every invalid enumerated value or range.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendMemory, c.Storage.Backend))
	}
	switch c.Chunking.Strategy {
	case StrategyText, StrategySemantic:
	default:
		errs = append(errs, fmt.Errorf("chunking.strategy must be %q or %q, got %q", StrategyText, StrategySemantic, c.Chunking.Strategy))
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize))
	}
	switch c.Retrieval.Mode {
	case ModeRAG, ModeFullText, ModeSmart:
	default:
		errs = append(errs, fmt.Errorf("retrieval.mode must be one of rag, full-text, smart, got %q", c.Retrieval.Mode))
	}
	switch c.Retrieval.KeywordBackend {
	case KeywordGrep, KeywordBleve:
	default:
		errs = append(errs, fmt.Errorf("retrieval.keyword_backend must be %q or %q, got %q", KeywordGrep, KeywordBleve, c.Retrieval.KeywordBackend))
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_score must be within [0, 1], got %g", c.Retrieval.MinScore))
	}
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.KeywordWeight < 0 {
		errs = append(errs, errors.New("retrieval weights must not be negative"))
	}
	if len(c.Embedding.Providers) == 0 {
		errs = append(errs, errors.New("embedding.providers must not be empty"))
	}
	for i, p := range c.Embedding.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("embedding.providers[%d].name is required", i))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = strings.TrimPrefix(path, "~/")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func envValue(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

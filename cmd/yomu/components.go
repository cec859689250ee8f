package main

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/enhance"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/keyword"
	"github.com/hyperjump/yomu/internal/llm"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/server"
	"github.com/hyperjump/yomu/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Store    storage.VectorStore
	Embedder *embedding.Generator
	// Enhancer is nil when no LLM is configured.
	Enhancer *enhance.Enhancer
	// KeywordIndex is nil unless retrieval.keyword_backend is bleve.
	KeywordIndex *keyword.BleveIndex
	Builder      *search.Builder
	Pipeline     *indexer.Pipeline

	memory       *storage.MemoryStore
	snapshotPath string
	logger       *zap.Logger
}

// ServerEnhancer returns the enhancer as a server.Enhancer, nil when unset.
func (c *Components) ServerEnhancer() server.Enhancer {
	if c.Enhancer == nil {
		return nil
	}
	return c.Enhancer
}

// Close saves the memory snapshot and releases every component.
func (c *Components) Close() {
	if c.memory != nil && c.snapshotPath != "" {
		if err := c.memory.Save(c.snapshotPath); err != nil {
			c.logger.Warn("snapshot save failed", zap.String("path", c.snapshotPath), zap.Error(err))
		}
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if err := c.openStore(cfg.Storage); err != nil {
		return nil, err
	}

	if c.Embedder, err = newGenerator(cfg.Embedding, logger); err != nil {
		return nil, err
	}

	gen, err := llm.New(cfg.LLM.Provider, llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey(),
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Info("llm not configured; query enhancement and document metadata disabled",
			zap.String("api_key_env", cfg.LLM.APIKeyEnv))
	case err != nil:
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	default:
		c.Enhancer = enhance.New(gen, enhance.WithModel(cfg.LLM.Model), enhance.WithLogger(logger))
	}

	if cfg.Retrieval.KeywordBackend == config.KeywordBleve {
		c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath,
			keyword.WithFuzziness(cfg.Retrieval.Fuzziness))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
	}

	builderOpts := []search.BuilderOption{
		search.WithHybridWeights(cfg.Retrieval.VectorWeight, cfg.Retrieval.KeywordWeight),
		search.WithDefaultMode(models.RetrievalMode(cfg.Retrieval.Mode)),
		search.WithSmartThreshold(cfg.Retrieval.SmartThreshold),
		search.WithBuilderLogger(logger),
	}
	pipelineOpts := []indexer.PipelineOption{
		indexer.WithSplitter(newSplitter(cfg.Chunking)),
		indexer.WithEmbeddingBatchSize(cfg.Embedding.BatchSize),
		indexer.WithLogger(logger),
	}
	if c.KeywordIndex != nil {
		builderOpts = append(builderOpts, search.WithKeywordScorer(c.KeywordIndex))
		pipelineOpts = append(pipelineOpts, indexer.WithChunkIndex(c.KeywordIndex))
	}
	if c.Enhancer != nil {
		builderOpts = append(builderOpts, search.WithEnhancer(c.Enhancer))
		pipelineOpts = append(pipelineOpts, indexer.WithEnricher(c.Enhancer))
	}
	c.Builder = search.NewBuilder(c.Store, c.Embedder, builderOpts...)
	c.Pipeline = indexer.NewPipeline(c.Store, nil, c.Embedder, pipelineOpts...)

	logger.Info("components initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_model", c.Embedder.Model()),
		zap.Bool("llm", c.Enhancer != nil),
		zap.String("keyword_backend", cfg.Retrieval.KeywordBackend),
		zap.String("chunk_strategy", cfg.Chunking.Strategy))
	return c, nil
}

func (c *Components) openStore(sc config.StorageConfig) error {
	switch sc.Backend {
	case config.BackendMemory:
		mem := storage.NewMemoryStore()
		if err := mem.Load(sc.SnapshotPath); err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		c.Store, c.memory, c.snapshotPath = mem, mem, sc.SnapshotPath
	default:
		store, err := storage.NewSQLiteStore(sc.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		c.Store = store
	}
	return nil
}

func newGenerator(ec config.EmbeddingConfig, logger *zap.Logger) (*embedding.Generator, error) {
	pcs := make([]embedding.ProviderConfig, 0, len(ec.Providers))
	for _, p := range ec.Providers {
		pcs = append(pcs, embedding.ProviderConfig{
			Name:       p.Name,
			Model:      p.Model,
			BaseURL:    p.BaseURL,
			APIKey:     p.APIKey(),
			Dimensions: p.Dimensions,
			Timeout:    ec.Timeout,
			MaxRetries: ec.MaxRetries,
			ModelPath:  p.ModelPath,
			MaxTokens:  p.MaxTokens,
		})
	}
	chain, err := embedding.NewChainFromConfig(pcs, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}

	opts := []embedding.GeneratorOption{
		embedding.WithBatchSize(ec.BatchSize),
		embedding.WithConcurrency(ec.Concurrency),
		embedding.WithLogger(logger),
	}
	if ec.RequestsPerSecond > 0 {
		burst := int(math.Ceil(ec.RequestsPerSecond))
		opts = append(opts, embedding.WithRateLimit(ec.RequestsPerSecond, burst))
	}
	if ec.CacheSize > 0 {
		cache, err := embedding.NewCache(ec.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		opts = append(opts, embedding.WithCache(cache))
	}
	return embedding.NewGenerator(chain, opts...), nil
}

func newSplitter(cc config.ChunkingConfig) indexer.Splitter {
	if cc.Strategy == config.StrategySemantic {
		sc := cc.Semantic
		return indexer.NewSemanticChunker(indexer.SemanticOptions{
			ChunkSizeTokens:    sc.ChunkSizeTokens,
			ChunkOverlapRatio:  sc.ChunkOverlapRatio,
			MinChunkSizeTokens: sc.MinChunkSizeTokens,
			MaxChunkSizeTokens: sc.MaxChunkSizeTokens,
			PreserveSentences:  sc.PreserveSentences == nil || *sc.PreserveSentences,
			PreserveSections:   sc.PreserveSections == nil || *sc.PreserveSections,
		})
	}
	return indexer.NewChunker(cc.ChunkSize, cc.ChunkOverlap)
}

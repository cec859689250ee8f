// Package server provides the HTTP API for yomu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/enhance"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/vector"
	"github.com/hyperjump/yomu/pkg/utils"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 100 << 20

// Embedder produces query and batch embeddings.
type Embedder interface {
	Model() string
	GenerateEmbedding(ctx context.Context, text string) (embedding.Vector, error)
	GenerateEmbeddings(ctx context.Context, texts []string, batchSize int, onProgress embedding.ProgressFunc) ([]embedding.Vector, error)
}

// Enhancer rewrites queries and describes documents with an LLM.
type Enhancer interface {
	EnhanceQuery(ctx context.Context, query string, structures []models.DocumentStructure) enhance.EnhancedQuery
	GenerateDocumentMetadata(ctx context.Context, text, fileName string) models.DocumentMetadata
}

// WatchService allows listing and adding/removing watch directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the yomu API.
type Server struct {
	store    storage.VectorStore
	pipeline *indexer.Pipeline
	builder  *search.Builder
	searcher *vector.Searcher
	embedder Embedder
	enhancer Enhancer
	cfg      *config.Config
	logger   *zap.Logger
	server   *http.Server

	watch      WatchService
	configPath string
	configMu   sync.Mutex

	maxUploadBytes int64
}

// NewServer creates a server with the given dependencies. enhancer and watch
// may be nil; the routes that need them then answer 503 and 501. When
// configPath is set, watch directory changes are persisted to it.
func NewServer(
	store storage.VectorStore,
	pipeline *indexer.Pipeline,
	builder *search.Builder,
	embedder Embedder,
	enhancer Enhancer,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = utils.OrNop(logger)
	return &Server{
		store:          store,
		pipeline:       pipeline,
		builder:        builder,
		searcher:       vector.NewSearcher(store, logger),
		embedder:       embedder,
		enhancer:       enhancer,
		cfg:            cfg,
		logger:         logger,
		watch:          watch,
		configPath:     configPath,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/threads/{threadID}", func(r chi.Router) {
			r.Post("/files", s.handleUploadFile)
			r.Get("/files", s.handleListThreadFiles)
			r.Delete("/", s.handleDeleteThread)
		})

		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/", s.handleGetFile)
			r.Patch("/", s.handleUpdateFile)
			r.Delete("/", s.handleDeleteFile)
			r.Get("/chunks", s.handleListChunks)
		})

		r.Post("/context", s.handleBuildContext)
		r.Post("/query-enhancement", s.handleEnhanceQuery)
		r.Post("/document-metadata", s.handleDocumentMetadata)
		r.Post("/embeddings", s.handleEmbeddings)
		r.Post("/vector-search", s.handleVectorSearch)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

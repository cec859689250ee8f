package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/enhance"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
)

const uploadField = "file"

type uploadResponse struct {
	File     *models.FileIndex      `json:"file"`
	Progress []models.ProgressEvent `json:"progress"`
}

type contextResponse struct {
	Context         models.RAGContext `json:"context"`
	EnhancedMessage string            `json:"enhanced_message"`
}

type queryEnhancementRequest struct {
	Query   string   `json:"query"`
	FileIDs []string `json:"file_ids,omitempty"`
}

type documentMetadataRequest struct {
	Text     string `json:"text"`
	FileName string `json:"file_name"`
}

type embeddingsRequest struct {
	Texts []string `json:"texts"`
}

type embeddingsResponse struct {
	Embeddings []embedding.Vector `json:"embeddings"`
	Model      string             `json:"model"`
	Dimensions int                `json:"dimensions"`
}

type vectorSearchResponse struct {
	Results []models.ScoredChunk `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"files":   stats.Files,
		"chunks":  stats.Chunks,
		"threads": stats.Threads,
	}

	configInfo := map[string]interface{}{
		"storage_backend":  s.cfg.Storage.Backend,
		"chunk_strategy":   s.cfg.Chunking.Strategy,
		"chunk_size":       s.cfg.Chunking.ChunkSize,
		"chunk_overlap":    s.cfg.Chunking.ChunkOverlap,
		"retrieval_mode":   s.cfg.Retrieval.Mode,
		"keyword_backend":  s.cfg.Retrieval.KeywordBackend,
		"database_path":    s.cfg.Storage.DatabasePath,
		"bleve_index_path": s.cfg.Storage.BleveIndexPath,
	}
	if s.embedder != nil {
		configInfo["embedding_model"] = s.embedder.Model()
	}
	resp["config"] = configInfo

	diskBytes, err := storage.DiskUsageBytes(
		s.cfg.Storage.DatabasePath,
		s.cfg.Storage.BleveIndexPath,
		s.cfg.Storage.SnapshotPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	f, header, err := r.FormFile(uploadField)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	var (
		mu     sync.Mutex
		events []models.ProgressEvent
	)
	collect := func(ev models.ProgressEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	s.logger.Debug("upload request",
		zap.String("thread_id", threadID),
		zap.String("file_name", header.Filename),
		zap.Int("bytes", len(content)))
	fi, err := s.pipeline.IngestFile(r.Context(), indexer.IngestRequest{
		Content:  content,
		FileName: filepath.Base(header.Filename),
		ThreadID: threadID,
		FolderID: r.FormValue("folder_id"),
	}, collect)
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	mu.Lock()
	defer mu.Unlock()
	s.respondJSON(w, http.StatusCreated, uploadResponse{File: fi, Progress: events})
}

func (s *Server) handleListThreadFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.GetFilesByThreadID(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	if files == nil {
		files = []*models.FileIndex{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	s.logger.Debug("delete thread request", zap.String("thread_id", threadID))
	n, err := s.pipeline.DeleteThread(r.Context(), threadID)
	if err != nil {
		s.logger.Error("thread deletion failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"thread_id": threadID, "deleted_files": n})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fi, err := s.store.GetFileMetadata(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, fi)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	var update models.FileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.Empty() {
		s.respondError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	fi, err := s.store.UpdateFileMetadata(r.Context(), chi.URLParam(r, "fileID"), update)
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, fi)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	s.logger.Debug("delete file request", zap.String("file_id", fileID))
	if err := s.pipeline.DeleteFile(r.Context(), fileID); err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": fileID, "status": "deleted"})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "fileID")
	if _, err := s.store.GetFileMetadata(ctx, fileID); err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	chunks, err := s.store.GetChunksByFileID(ctx, fileID)
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"chunks": chunks})
}

func (s *Server) handleBuildContext(w http.ResponseWriter, r *http.Request) {
	var req models.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := ContextOptions(s.cfg.Retrieval, req)
	s.logger.Debug("context request",
		zap.String("query", req.Query),
		zap.String("thread_id", req.ThreadID),
		zap.Int("file_ids", len(req.FileIDs)),
		zap.String("mode", string(opts.Mode)))

	var rc models.RAGContext
	if len(req.FileIDs) > 0 {
		rc = s.builder.BuildRAGContext(r.Context(), req.FileIDs, req.Query, opts)
	} else {
		rc = s.builder.BuildThreadContext(r.Context(), req.ThreadID, req.Query, opts)
	}
	s.respondJSON(w, http.StatusOK, contextResponse{
		Context:         rc,
		EnhancedMessage: search.BuildEnhancedMessage(req.Query, &rc),
	})
}

// ContextOptions layers the overrides of req over the configured retrieval defaults.
func ContextOptions(rc config.RetrievalConfig, req models.ContextRequest) search.ContextOptions {
	opts := search.ContextOptions{
		TopK:            rc.TopK,
		MinScore:        rc.MinScore,
		UseEnhancement:  rc.EnhancementOrDefault(),
		UseHybridSearch: rc.HybridOrDefault(),
		Mode:            req.Mode,
		IncludeOverview: rc.IncludeOverview,
	}
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	if req.UseEnhancement != nil {
		opts.UseEnhancement = *req.UseEnhancement
	}
	if req.UseHybridSearch != nil {
		opts.UseHybridSearch = *req.UseHybridSearch
	}
	return opts
}

func (s *Server) handleEnhanceQuery(w http.ResponseWriter, r *http.Request) {
	var req queryEnhancementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}
	if s.enhancer == nil {
		s.respondJSON(w, http.StatusOK, enhance.Unenhanced(req.Query))
		return
	}
	var structures []models.DocumentStructure
	for _, id := range req.FileIDs {
		fi, err := s.store.GetFileMetadata(r.Context(), id)
		if err != nil {
			s.logger.Debug("query enhancement: skipping file", zap.String("file_id", id), zap.Error(err))
			continue
		}
		if fi.Metadata == nil || len(fi.Metadata.TableOfContents) == 0 {
			continue
		}
		structures = append(structures, models.DocumentStructure{
			FileName:        fi.FileName,
			TableOfContents: fi.Metadata.TableOfContents,
		})
	}
	s.respondJSON(w, http.StatusOK, s.enhancer.EnhanceQuery(r.Context(), req.Query, structures))
}

func (s *Server) handleDocumentMetadata(w http.ResponseWriter, r *http.Request) {
	var req documentMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text cannot be empty")
		return
	}
	if s.enhancer == nil {
		s.respondError(w, http.StatusServiceUnavailable, "llm not configured")
		return
	}
	s.respondJSON(w, http.StatusOK, s.enhancer.GenerateDocumentMetadata(r.Context(), req.Text, req.FileName))
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Texts) == 0 {
		s.respondError(w, http.StatusBadRequest, "texts cannot be empty")
		return
	}
	vecs, err := s.embedder.GenerateEmbeddings(r.Context(), req.Texts, 0, nil)
	if err != nil {
		s.logger.Error("embedding request failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	resp := embeddingsResponse{Embeddings: vecs, Model: s.embedder.Model()}
	if len(vecs) > 0 {
		resp.Model = vecs[0].Model
		resp.Dimensions = vecs[0].Dimensions()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req models.VectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	qv, err := s.embedder.GenerateEmbedding(ctx, req.Query)
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	// a negative minimum selects the searcher's default
	minScore := -1.0
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	var results []models.ScoredChunk
	if req.FileID != "" {
		results, err = s.searcher.SearchSimilarChunksInFile(ctx, qv, req.FileID, req.TopK, minScore)
	} else {
		results, err = s.searcher.SearchSimilarChunks(ctx, qv, req.ThreadID, req.TopK, minScore)
	}
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	if results == nil {
		results = []models.ScoredChunk{}
	}
	s.respondJSON(w, http.StatusOK, vectorSearchResponse{Results: results})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, extract.ErrParseFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, embedding.ErrAPIFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.String("error", message))
	}
	s.respondJSON(w, status, map[string]string{"error": message})
}

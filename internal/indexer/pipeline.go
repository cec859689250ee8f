package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	// DefaultStoreBatchSize is how many chunks one StoreChunks call writes.
	DefaultStoreBatchSize = 50

	progressParsing      = 10
	progressChunking     = 20
	progressChunked      = 30
	progressEmbeddingEnd = 80
	progressStoringEnd   = 95
	progressComplete     = 100
)

// DocumentEmbedder embeds chunk texts in input order.
type DocumentEmbedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string, batchSize int, onProgress embedding.ProgressFunc) ([]embedding.Vector, error)
}

// MetadataGenerator describes a document. It never fails.
type MetadataGenerator interface {
	GenerateDocumentMetadata(ctx context.Context, text, fileName string) models.DocumentMetadata
}

// ChunkIndex is a secondary index kept in sync with stored chunks.
type ChunkIndex interface {
	IndexChunks(ctx context.Context, fileName string, chunks []models.Chunk) error
	DeleteFile(ctx context.Context, fileID string) error
	DeleteThread(ctx context.Context, threadID string) error
}

// IngestRequest describes one document to ingest. Content wins over Path.
// FileID defaults to an ID derived from thread and content.
type IngestRequest struct {
	Path     string
	Content  []byte
	FileName string
	ThreadID string
	FolderID string
	FileID   string
	// SkipUnchanged returns the stored record untouched when a file with the
	// same ID and content hash exists.
	SkipUnchanged bool
}

// Pipeline parses, chunks, embeds and stores documents.
type Pipeline struct {
	store          storage.VectorStore
	parsers        *extract.Chain
	embedder       DocumentEmbedder
	splitter       Splitter
	enricher       MetadataGenerator
	index          ChunkIndex
	storeBatchSize int
	embedBatchSize int
	logger         *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSplitter sets the chunking strategy. The default is a Chunker with
// DefaultChunkSize and DefaultChunkOverlap.
func WithSplitter(s Splitter) PipelineOption {
	return func(p *Pipeline) {
		if s != nil {
			p.splitter = s
		}
	}
}

// WithEnricher generates document metadata after the chunks are stored.
func WithEnricher(m MetadataGenerator) PipelineOption {
	return func(p *Pipeline) { p.enricher = m }
}

// WithChunkIndex mirrors stored chunks into idx.
func WithChunkIndex(idx ChunkIndex) PipelineOption {
	return func(p *Pipeline) { p.index = idx }
}

// WithStoreBatchSize sets how many chunks are written per store call.
func WithStoreBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.storeBatchSize = n
		}
	}
}

// WithEmbeddingBatchSize sets the embedding batch size; 0 uses the embedder's default.
func WithEmbeddingBatchSize(n int) PipelineOption {
	return func(p *Pipeline) { p.embedBatchSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline. parsers may be nil for the default chain.
func NewPipeline(store storage.VectorStore, parsers *extract.Chain, embedder DocumentEmbedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:          store,
		parsers:        parsers,
		embedder:       embedder,
		splitter:       NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		storeBatchSize: DefaultStoreBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	if p.parsers == nil {
		p.parsers = extract.DefaultChain(p.logger)
	}
	return p
}

// Supports reports whether the pipeline can parse files with extension ext.
func (p *Pipeline) Supports(ext string) bool {
	return p.parsers.Supports(ext)
}

// IngestFile runs one document through the pipeline, reporting progress to
// onProgress (which may be nil). Progress never decreases. Any parse or
// embedding failure aborts the document before its chunks are written, and
// a previously stored version is left in place. Metadata generation failures
// only leave the metadata empty.
func (p *Pipeline) IngestFile(ctx context.Context, req IngestRequest, onProgress models.ProgressFunc) (*models.FileIndex, error) {
	tracker := NewProgressTracker(onProgress)
	fi, err := p.ingest(ctx, req, tracker)
	if err != nil {
		tracker.Report(models.StageError, tracker.Last(), err.Error())
		p.logger.Error("ingestion failed",
			zap.String("file_name", req.FileName),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, err
	}
	return fi, nil
}

func (p *Pipeline) ingest(ctx context.Context, req IngestRequest, tracker *ProgressTracker) (*models.FileIndex, error) {
	if req.ThreadID == "" {
		return nil, errors.New("thread_id is required")
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.Path)
	}
	tracker.Report(models.StageUploading, 0, "Uploading "+fileName)

	content := req.Content
	if content == nil {
		if req.Path == "" {
			return nil, errors.New("path or content is required")
		}
		b, err := os.ReadFile(req.Path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		content = b
	}

	fileID := req.FileID
	if fileID == "" {
		fileID = fileid.FromContent(req.ThreadID, content)
	}
	hash := fileid.ContentHash(content)

	existing, err := p.store.GetFileMetadata(ctx, fileID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load existing file: %w", err)
	}
	if req.SkipUnchanged && existing != nil && existing.ContentHash == hash && existing.ThreadID == req.ThreadID {
		p.logger.Debug("skipping unchanged file", zap.String("file_id", fileID), zap.String("file_name", fileName))
		tracker.Report(models.StageComplete, progressComplete, "Unchanged")
		return existing, nil
	}

	tracker.Report(models.StageParsing, progressParsing, "Parsing document")
	doc, err := p.parsers.Parse(ctx, content, filepath.Ext(fileName))
	if err != nil {
		return nil, err
	}
	text := Preprocess(doc.Text)

	tracker.Report(models.StageChunking, progressChunking, "Splitting text into chunks")
	chunks, err := p.splitter.Split(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}
	tracker.Report(models.StageChunking, progressChunked, fmt.Sprintf("Created %d chunks", len(chunks)))

	fi := &models.FileIndex{
		ID:              fileID,
		ThreadID:        req.ThreadID,
		FileName:        fileName,
		FileSize:        int64(len(content)),
		PageCount:       doc.PageCount,
		ChunkCount:      len(chunks),
		ParserRequestID: uuid.NewString(),
		FolderID:        req.FolderID,
		ContentHash:     hash,
	}

	if len(chunks) > 0 {
		if err := p.embed(ctx, chunks, tracker); err != nil {
			return nil, err
		}
		fi.EmbeddingModel = chunks[0].EmbeddingModel
	}

	if existing != nil {
		if err := p.deleteFile(ctx, fileID); err != nil {
			return nil, fmt.Errorf("replace existing file: %w", err)
		}
	}

	if err := p.storeChunks(ctx, fi, chunks, tracker); err != nil {
		return nil, err
	}
	fi.ProcessedAt = time.Now()
	if err := p.store.StoreFileMetadata(ctx, fi); err != nil {
		return nil, err
	}

	if p.enricher != nil && len(chunks) > 0 {
		tracker.Report(models.StageStoring, progressStoringEnd, "Generating document metadata")
		md := p.enricher.GenerateDocumentMetadata(ctx, text, fileName)
		updated, err := p.store.UpdateFileMetadata(ctx, fileID, models.FileUpdate{Metadata: &md})
		if err != nil {
			p.logger.Warn("failed to store document metadata", zap.String("file_id", fileID), zap.Error(err))
		} else {
			fi = updated
		}
	}

	tracker.Report(models.StageComplete, progressComplete, "Complete")
	p.logger.Info("file ingested",
		zap.String("file_id", fileID),
		zap.String("file_name", fileName),
		zap.String("thread_id", req.ThreadID),
		zap.Int("chunks", fi.ChunkCount),
		zap.String("parser", doc.Parser))
	return fi, nil
}

// embed fills every chunk's embedding, reporting progress from 30 to 80.
func (p *Pipeline) embed(ctx context.Context, chunks []models.Chunk, tracker *ProgressTracker) error {
	tracker.Report(models.StageEmbedding, progressChunked, "Generating embeddings")
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	span := progressEmbeddingEnd - progressChunked
	vectors, err := p.embedder.GenerateEmbeddings(ctx, texts, p.embedBatchSize, func(done, total int) {
		tracker.Report(models.StageEmbedding, progressChunked+done*span/total,
			fmt.Sprintf("Embedded %d/%d chunks", done, total))
	})
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrAPIFailed, len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i].Values
		chunks[i].EmbeddingModel = vectors[i].Model
	}
	return nil
}

// storeChunks writes chunks in sequential batches, reporting progress from 80
// to 95, then mirrors them into the chunk index.
func (p *Pipeline) storeChunks(ctx context.Context, fi *models.FileIndex, chunks []models.Chunk, tracker *ProgressTracker) error {
	tracker.Report(models.StageStoring, progressEmbeddingEnd, "Storing chunks")
	for i := range chunks {
		chunks[i].ID = fileid.ChunkID(fi.ID, chunks[i].ChunkIndex)
		chunks[i].FileID = fi.ID
		chunks[i].ThreadID = fi.ThreadID
	}
	span := progressStoringEnd - progressEmbeddingEnd
	for start := 0; start < len(chunks); start += p.storeBatchSize {
		end := min(start+p.storeBatchSize, len(chunks))
		if err := p.store.StoreChunks(ctx, fi.ID, fi.ThreadID, chunks[start:end]); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
		tracker.Report(models.StageStoring, progressEmbeddingEnd+end*span/len(chunks),
			fmt.Sprintf("Stored %d/%d chunks", end, len(chunks)))
	}
	if p.index != nil && len(chunks) > 0 {
		if err := p.index.IndexChunks(ctx, fi.FileName, chunks); err != nil {
			p.logger.Warn("failed to index chunks for keyword search", zap.String("file_id", fi.ID), zap.Error(err))
		}
	}
	return nil
}

// DeleteFile removes a file, its chunks and its keyword index entries.
func (p *Pipeline) DeleteFile(ctx context.Context, fileID string) error {
	return p.deleteFile(ctx, fileID)
}

func (p *Pipeline) deleteFile(ctx context.Context, fileID string) error {
	if err := p.store.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	if p.index != nil {
		if err := p.index.DeleteFile(ctx, fileID); err != nil {
			p.logger.Warn("failed to delete file from keyword index", zap.String("file_id", fileID), zap.Error(err))
		}
	}
	p.logger.Debug("file deleted", zap.String("file_id", fileID))
	return nil
}

// DeleteThread removes every file of threadID and returns how many were removed.
func (p *Pipeline) DeleteThread(ctx context.Context, threadID string) (int, error) {
	n, err := p.store.DeleteThreadData(ctx, threadID)
	if err != nil {
		return 0, err
	}
	if p.index != nil {
		if err := p.index.DeleteThread(ctx, threadID); err != nil {
			p.logger.Warn("failed to delete thread from keyword index", zap.String("thread_id", threadID), zap.Error(err))
		}
	}
	return n, nil
}

// DirectoryResult is the outcome of one file in IngestDirectory.
type DirectoryResult struct {
	Path string
	File *models.FileIndex
	Err  error
}

// IngestDirectory ingests every supported regular file under dir into
// threadID. File IDs are derived from the absolute path so a changed file
// replaces its earlier version, and unchanged files are skipped. allowedExts
// narrows the supported extensions when non-empty. Per-file failures are
// reported through onFile (which may be nil) and do not stop the walk.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir, threadID string, recursive bool, allowedExts []string, onFile func(DirectoryResult)) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	var n int
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !p.Accepts(path, allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		fi, ingestErr := p.IngestFile(ctx, IngestRequest{
			Path:          path,
			ThreadID:      threadID,
			FileID:        fileid.FromPath(threadID, path),
			SkipUnchanged: true,
		}, nil)
		if ingestErr == nil {
			n++
		}
		if onFile != nil {
			onFile(DirectoryResult{Path: path, File: fi, Err: ingestErr})
		}
		return nil
	})
	return n, err
}

// Accepts reports whether path has an extension the pipeline parses and, when
// allowedExts is non-empty, one of allowedExts. Hidden files are rejected.
func (p *Pipeline) Accepts(path string, allowedExts []string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	ext := filepath.Ext(path)
	if ext == "" || !p.parsers.Supports(ext) {
		return false
	}
	return len(allowedExts) == 0 || extensionAllowed(ext, allowedExts)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

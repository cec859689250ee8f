package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	DefaultTopK     = 5
	DefaultMinScore = 0.5
)

// Searcher runs brute-force cosine search over the chunks of a thread or file.
type Searcher struct {
	store  storage.VectorStore
	logger *zap.Logger
}

// NewSearcher creates a searcher over store. logger may be nil.
func NewSearcher(store storage.VectorStore, logger *zap.Logger) *Searcher {
	return &Searcher{store: store, logger: utils.OrNop(logger)}
}

// SearchSimilarChunks scores every chunk in threadID against query.
// topK <= 0 uses DefaultTopK; minScore < 0 uses DefaultMinScore.
func (s *Searcher) SearchSimilarChunks(ctx context.Context, query embedding.Vector, threadID string, topK int, minScore float64) ([]models.ScoredChunk, error) {
	chunks, err := s.store.GetChunksByThreadID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread chunks: %w", err)
	}
	return s.rank(ctx, query, chunks, topK, minScore)
}

// SearchSimilarChunksInFile is SearchSimilarChunks scoped to one file.
func (s *Searcher) SearchSimilarChunksInFile(ctx context.Context, query embedding.Vector, fileID string, topK int, minScore float64) ([]models.ScoredChunk, error) {
	chunks, err := s.store.GetChunksByFileID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("load file chunks: %w", err)
	}
	return s.rank(ctx, query, chunks, topK, minScore)
}

// rank scores chunks in store order. Chunks that cannot be compared with the
// query (wrong dimension, different model, missing file) are logged and skipped.
func (s *Searcher) rank(ctx context.Context, query embedding.Vector, chunks []models.Chunk, topK int, minScore float64) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore < 0 {
		minScore = DefaultMinScore
	}

	names := make(map[string]string)
	var skipped int
	results := make([]models.ScoredChunk, 0, len(chunks))
	for i, c := range chunks {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(c.Embedding) != len(query.Values) {
			s.logger.Warn("skipping chunk with mismatched embedding dimensions",
				zap.String("chunk_id", c.ID),
				zap.Int("chunk_dims", len(c.Embedding)),
				zap.Int("query_dims", len(query.Values)))
			skipped++
			continue
		}
		if c.EmbeddingModel != "" && query.Model != "" && c.EmbeddingModel != query.Model {
			s.logger.Warn("skipping chunk embedded by a different model",
				zap.String("chunk_id", c.ID),
				zap.String("chunk_model", c.EmbeddingModel),
				zap.String("query_model", query.Model))
			skipped++
			continue
		}
		score, err := CosineSimilarity(query.Values, c.Embedding)
		if err != nil {
			continue
		}
		if score < minScore {
			continue
		}
		name, ok := names[c.FileID]
		if !ok {
			name, err = s.fileName(ctx, c.FileID)
			if err != nil {
				return nil, err
			}
			names[c.FileID] = name
		}
		if name == "" {
			skipped++
			continue
		}
		results = append(results, models.ScoredChunk{
			FileID:      c.FileID,
			FileName:    name,
			ChunkIndex:  c.ChunkIndex,
			Text:        c.Text,
			Score:       score,
			VectorScore: score,
		})
	}
	if skipped > 0 {
		s.logger.Debug("vector search skipped chunks", zap.Int("skipped", skipped))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// fileName resolves a chunk's file name. An empty name means the chunk
// references a file with no stored record.
func (s *Searcher) fileName(ctx context.Context, fileID string) (string, error) {
	f, err := s.store.GetFileMetadata(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("chunk references missing file", zap.String("file_id", fileID))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load file %s: %w", fileID, err)
	}
	if f.FileName == "" {
		return fileID, nil
	}
	return f.FileName, nil
}

// Package keyword provides the lexical retrieval signal: a grep scorer over
// chunk text and a Bleve full-text index of chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/yomu/internal/models"
)

// Backend names accepted by NewScorer callers and the retrieval config.
const (
	BackendGrep  = "grep"
	BackendBleve = "bleve"
)

// Scorer assigns keyword scores in [0, 1] to the chunks of one file.
// chunks are the file's stored chunks in chunk order; scorers backed by their
// own index may ignore them.
type Scorer interface {
	ScoreChunks(ctx context.Context, fileID string, chunks []models.Chunk, terms []string) ([]models.ScoredChunk, error)
}

// GrepScorer scores with GrepSearch.
type GrepScorer struct{}

// ScoreChunks implements Scorer.
func (GrepScorer) ScoreChunks(ctx context.Context, fileID string, chunks []models.Chunk, terms []string) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GrepSearch(chunks, terms), nil
}

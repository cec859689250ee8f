// Package search fuses retrieval signals and assembles RAG context for chat prompts.
package search

import (
	"sort"

	"github.com/hyperjump/yomu/internal/models"
)

const (
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3
	DefaultHybridTopK    = 10
)

// HybridOptions weighs the vector and keyword signals.
type HybridOptions struct {
	VectorWeight  float64
	KeywordWeight float64
	TopK          int
}

// DefaultHybridOptions returns 0.7/0.3 weights and a top-k of 10.
func DefaultHybridOptions() HybridOptions {
	return HybridOptions{
		VectorWeight:  DefaultVectorWeight,
		KeywordWeight: DefaultKeywordWeight,
		TopK:          DefaultHybridTopK,
	}
}

func (o HybridOptions) withDefaults() HybridOptions {
	if o.VectorWeight == 0 && o.KeywordWeight == 0 {
		o.VectorWeight, o.KeywordWeight = DefaultVectorWeight, DefaultKeywordWeight
	}
	if o.TopK <= 0 {
		o.TopK = DefaultHybridTopK
	}
	return o
}

// HybridSearch merges vector and keyword results keyed by (fileID, chunkIndex).
// The Score of each input is taken as its signal; a chunk found by only one
// side scores 0 on the other. The fused score is
// vectorScore*VectorWeight + keywordScore*KeywordWeight. Results are sorted by
// descending score, ties in first-seen order (vector results first), and
// truncated to TopK.
func HybridSearch(vectorResults, keywordResults []models.ScoredChunk, opts HybridOptions) []models.ScoredChunk {
	opts = opts.withDefaults()

	scoreMap := make(map[models.ChunkKey]*models.ScoredChunk, len(vectorResults)+len(keywordResults))
	order := make([]models.ChunkKey, 0, len(vectorResults)+len(keywordResults))
	for _, r := range vectorResults {
		key := r.Key()
		if existing, ok := scoreMap[key]; ok {
			existing.VectorScore = max(existing.VectorScore, r.Score)
			continue
		}
		fused := r
		fused.VectorScore = r.Score
		fused.KeywordScore = 0
		scoreMap[key] = &fused
		order = append(order, key)
	}
	for _, r := range keywordResults {
		key := r.Key()
		if existing, ok := scoreMap[key]; ok {
			existing.KeywordScore = max(existing.KeywordScore, r.Score)
			if existing.FileName == "" {
				existing.FileName = r.FileName
			}
			continue
		}
		fused := r
		fused.VectorScore = 0
		fused.KeywordScore = r.Score
		scoreMap[key] = &fused
		order = append(order, key)
	}

	results := make([]models.ScoredChunk, 0, len(order))
	for _, key := range order {
		r := scoreMap[key]
		r.Score = r.VectorScore*opts.VectorWeight + r.KeywordScore*opts.KeywordWeight
		results = append(results, *r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results
}

package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/enhance"
	"github.com/hyperjump/yomu/internal/llm"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

type fixedEmbedder struct {
	mu      sync.Mutex
	vector  embedding.Vector
	err     error
	queries []string
}

func (f *fixedEmbedder) GenerateEmbedding(_ context.Context, text string) (embedding.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	return f.vector, f.err
}

func newFixedEmbedder() *fixedEmbedder {
	return &fixedEmbedder{vector: embedding.Vector{Values: []float32{1, 0, 0}, Model: "m"}}
}

func seedStore(t *testing.T) storage.VectorStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	chunk := func(idx int, text string, v ...float32) models.Chunk {
		return models.Chunk{ChunkIndex: idx, Text: text, Embedding: v, EmbeddingModel: "m"}
	}
	require.NoError(t, store.StoreChunks(ctx, "f1", "t1", []models.Chunk{
		chunk(0, "apple pie recipe", 1, 0, 0),
		chunk(1, "banana bread", 0, 1, 0),
		chunk(2, "apple tart", 0.8, 0.6, 0),
	}))
	require.NoError(t, store.StoreChunks(ctx, "f2", "t1", []models.Chunk{
		chunk(0, "cherry", 0.9, 0.1, 0),
	}))
	require.NoError(t, store.StoreFileMetadata(ctx, &models.FileIndex{
		ID: "f1", ThreadID: "t1", FileName: "guide.pdf", ChunkCount: 3,
		Metadata: &models.DocumentMetadata{
			Summary:  "A baking guide.",
			Keywords: []string{"apple", "bread"},
			Topics:   []string{"Baking"},
			TableOfContents: []models.TOCEntry{
				{Title: "Pies", Level: 1, PageNumber: 2},
				{Title: "Tarts", Level: 2},
			},
		},
	}))
	require.NoError(t, store.StoreFileMetadata(ctx, &models.FileIndex{
		ID: "f2", ThreadID: "t1", FileName: "notes.txt", ChunkCount: 1,
	}))
	return store
}

func ragOptions() ContextOptions {
	opts := DefaultContextOptions()
	opts.TopK = 1
	opts.UseEnhancement = false
	return opts
}

func TestBuildRAGContext_VectorOnly(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())
	opts := ragOptions()
	opts.UseHybridSearch = false

	rc := b.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "apple", opts)

	require.Len(t, rc.RelevantChunks, 2)
	assert.Equal(t, "f1", rc.RelevantChunks[0].FileID)
	assert.Equal(t, 0, rc.RelevantChunks[0].ChunkIndex)
	assert.Equal(t, "f2", rc.RelevantChunks[1].FileID)
	assert.Equal(t, "[Document 1: guide.pdf]\napple pie recipe\n\n---\n\n[Document 2: notes.txt]\ncherry", rc.ContextText)
	assert.False(t, rc.IsFullText)
	assert.Equal(t, models.ModeRAG, rc.Mode)
	assert.Equal(t, "apple", rc.Query)
}

func TestBuildRAGContext_Hybrid(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())

	rc := b.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "apple", ragOptions())

	require.Len(t, rc.RelevantChunks, 2)
	first, second := rc.RelevantChunks[0], rc.RelevantChunks[1]
	assert.Equal(t, models.ChunkKey{FileID: "f1", ChunkIndex: 0}, first.Key())
	assert.InDelta(t, 0.7*1.0+0.3*0.5, first.Score, 1e-6)
	assert.Equal(t, models.ChunkKey{FileID: "f1", ChunkIndex: 2}, second.Key())
	assert.InDelta(t, 0.7*0.8+0.3*0.5, second.Score, 1e-6)
	assert.Equal(t, "guide.pdf", second.FileName)
	assert.Equal(t, []string{"apple"}, rc.SearchTerms)
}

func TestBuildRAGContext_Enhancement(t *testing.T) {
	gen := llm.NewMock(`Sure: {"enhancedQuery": "apple desserts", "searchTerms": ["tart"]}`)
	emb := newFixedEmbedder()
	b := NewBuilder(seedStore(t), emb, WithEnhancer(enhance.New(gen)))
	opts := ragOptions()
	opts.UseEnhancement = true

	rc := b.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "apple", opts)

	assert.Equal(t, []string{"tart"}, rc.SearchTerms)
	assert.Equal(t, []string{"apple desserts"}, emb.queries)
	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "Document: guide.pdf")
	assert.Contains(t, reqs[0].Prompt, "Pies (page 2)")
	assert.NotContains(t, reqs[0].Prompt, "notes.txt")
	require.Len(t, rc.RelevantChunks, 2)
	// "tart" does not occur in the best vector hit
	assert.Equal(t, models.ChunkKey{FileID: "f1", ChunkIndex: 0}, rc.RelevantChunks[0].Key())
	assert.Zero(t, rc.RelevantChunks[0].KeywordScore)
	assert.InDelta(t, 0.7, rc.RelevantChunks[0].Score, 1e-6)
}

func TestBuildRAGContext_Overview(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())
	opts := ragOptions()
	opts.IncludeOverview = true

	rc := b.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "apple", opts)

	assert.True(t, strings.HasPrefix(rc.ContextText, "=== DOCUMENT OVERVIEW ===\n\nDocument: guide.pdf\n"))
	assert.Contains(t, rc.ContextText, "\nSummary:\nA baking guide.\n")
	assert.Contains(t, rc.ContextText, "\nTable of Contents:\nPies (page 2)\n  Tarts\n")
	assert.Contains(t, rc.ContextText, "\nKeywords: apple, bread\nTopics: Baking\n")
	assert.Contains(t, rc.ContextText, "=== RELEVANT DOCUMENT EXCERPTS ===\n\n[Document 1: guide.pdf]")
	assert.NotContains(t, rc.ContextText, "Document: notes.txt")
}

func TestBuildRAGContext_FullText(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())
	opts := DefaultContextOptions()
	opts.Mode = models.ModeFullText

	rc := b.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "anything", opts)

	assert.True(t, rc.IsFullText)
	require.Len(t, rc.RelevantChunks, 4)
	for _, c := range rc.RelevantChunks {
		assert.Equal(t, 1.0, c.Score)
	}
	assert.Equal(t,
		"[Document 1: guide.pdf]\napple pie recipe\n\nbanana bread\n\napple tart\n\n---\n\n[Document 2: notes.txt]\ncherry",
		rc.ContextText)
}

func TestBuildRAGContext_FullTextOverview(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder(), WithDefaultMode(models.ModeFullText))
	opts := DefaultContextOptions()
	opts.IncludeOverview = true

	rc := b.BuildRAGContext(context.Background(), []string{"f1"}, "anything", opts)

	assert.True(t, strings.HasPrefix(rc.ContextText, "=== DOCUMENT OVERVIEW ==="))
	assert.Contains(t, rc.ContextText, "=== FULL DOCUMENT CONTENT ===\n\n[Document 1: guide.pdf]\n")
}

func TestBuildRAGContext_Smart(t *testing.T) {
	opts := ragOptions()
	opts.Mode = models.ModeSmart

	small := NewBuilder(seedStore(t), newFixedEmbedder())
	rc := small.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "apple", opts)
	assert.True(t, rc.IsFullText)
	assert.Equal(t, models.ModeSmart, rc.Mode)
	assert.Len(t, rc.RelevantChunks, 4)

	emb := newFixedEmbedder()
	large := NewBuilder(seedStore(t), emb, WithSmartThreshold(10))
	rc = large.BuildRAGContext(context.Background(), []string{"f1", "f2"}, "apple", opts)
	assert.False(t, rc.IsFullText)
	assert.Equal(t, models.ModeSmart, rc.Mode)
	assert.Len(t, rc.RelevantChunks, 2)
	assert.Len(t, emb.queries, 1)
}

func TestBuildRAGContext_EmbeddingFailureYieldsEmptyContext(t *testing.T) {
	emb := newFixedEmbedder()
	emb.err = errors.New("embedding API failed: boom")
	b := NewBuilder(seedStore(t), emb)

	rc := b.BuildRAGContext(context.Background(), []string{"f1"}, "apple", ragOptions())

	assert.Empty(t, rc.ContextText)
	assert.Empty(t, rc.RelevantChunks)
	assert.Equal(t, "apple", rc.Query)
	assert.Equal(t, "apple", BuildEnhancedMessage("apple", &rc))
}

func TestBuildRAGContext_MissingAndEmptyFiles(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())

	rc := b.BuildRAGContext(context.Background(), nil, "apple", ragOptions())
	assert.True(t, rc.Empty())

	rc = b.BuildRAGContext(context.Background(), []string{"missing", "f2"}, "apple", ragOptions())
	require.Len(t, rc.RelevantChunks, 1)
	assert.Equal(t, "f2", rc.RelevantChunks[0].FileID)
}

func TestBuildRAGContext_DeduplicatesRepeatedFiles(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())
	opts := ragOptions()
	opts.TopK = 3

	rc := b.BuildRAGContext(context.Background(), []string{"f1", "f1"}, "apple", opts)

	seen := map[string]bool{}
	for _, c := range rc.RelevantChunks {
		key := c.Text
		assert.False(t, seen[key], "duplicate chunk %q", key)
		seen[key] = true
	}
	assert.Len(t, rc.RelevantChunks, 2)
}

func TestBuildThreadContext(t *testing.T) {
	b := NewBuilder(seedStore(t), newFixedEmbedder())
	opts := ragOptions()
	opts.UseHybridSearch = false

	rc := b.BuildThreadContext(context.Background(), "t1", "apple", opts)
	assert.Len(t, rc.RelevantChunks, 2)

	rc = b.BuildThreadContext(context.Background(), "nope", "apple", opts)
	assert.True(t, rc.Empty())
}

package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/yomu/internal/models"
)

// deleteBatchSize bounds how many chunk IDs one delete round removes.
const deleteBatchSize = 1000

// BleveIndex is a full-text index of chunks scoped by file and thread.
// Document IDs are chunk IDs.
type BleveIndex struct {
	index     bleve.Index
	fuzziness int
}

// BleveOption configures a BleveIndex.
type BleveOption func(*BleveIndex)

// WithFuzziness enables fuzzy term matching within the given edit distance (1 or 2).
func WithFuzziness(n int) BleveOption {
	return func(b *BleveIndex) {
		if n >= 0 && n <= 2 {
			b.fuzziness = n
		}
	}
}

type chunkDoc struct {
	FileID     string `json:"file_id"`
	ThreadID   string `json:"thread_id"`
	FileName   string `json:"file_name"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

func chunkMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so terms match the
	// exact word as typed.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("file_name", textFieldMapping)

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("file_id", idFieldMapping)
	docMapping.AddFieldMappingsAt("thread_id", idFieldMapping)

	docMapping.AddFieldMappingsAt("chunk_index", bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps
// the index in memory.
// If the path already exists, the existing index is opened. If you change the
// index mapping in code, remove the index directory to force a re-index.
func NewBleveIndex(path string, opts ...BleveOption) (*BleveIndex, error) {
	b := &BleveIndex{}
	for _, opt := range opts {
		opt(b)
	}

	im := chunkMapping()
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		b.index = index
		return b, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// IndexChunks adds or replaces chunks in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, fileName string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk %d of %s has no id", c.ChunkIndex, c.FileID)
		}
		doc := chunkDoc{
			FileID:     c.FileID,
			ThreadID:   c.ThreadID,
			FileName:   fileName,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search returns up to limit chunks of fileID matching any of terms. Multi-word
// terms are matched as phrases. Scores are raw Bleve scores.
func (b *BleveIndex) Search(ctx context.Context, fileID string, terms []string, limit int) ([]models.ScoredChunk, error) {
	q := b.buildTermsQuery(terms)
	if q == nil {
		return nil, nil
	}
	if fileID != "" {
		scope := bleve.NewTermQuery(fileID)
		scope.SetField("file_id")
		q = bleve.NewConjunctionQuery(scope, q)
	}
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"file_id", "file_name", "chunk_index", "text"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.ScoredChunk, 0, len(results.Hits))
	for _, hit := range results.Hits {
		sc := models.ScoredChunk{Score: hit.Score, KeywordScore: hit.Score}
		if v, ok := hit.Fields["file_id"].(string); ok {
			sc.FileID = v
		}
		if v, ok := hit.Fields["file_name"].(string); ok {
			sc.FileName = v
		}
		if v, ok := hit.Fields["chunk_index"].(float64); ok {
			sc.ChunkIndex = int(v)
		}
		if v, ok := hit.Fields["text"].(string); ok {
			sc.Text = v
		}
		out = append(out, sc)
	}
	return out, nil
}

// ScoreChunks implements Scorer. Bleve scores are normalized by the best hit
// so they share the [0, 1] range of the vector signal.
func (b *BleveIndex) ScoreChunks(ctx context.Context, fileID string, chunks []models.Chunk, terms []string) ([]models.ScoredChunk, error) {
	limit := len(chunks)
	if limit == 0 {
		limit = 10
	}
	results, err := b.Search(ctx, fileID, terms, limit)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	if maxScore <= 0 {
		return nil, nil
	}
	for i := range results {
		results[i].Score /= maxScore
		results[i].KeywordScore = results[i].Score
	}
	return results, nil
}

// buildTermsQuery ORs one query per term. Returns nil when no term is usable.
func (b *BleveIndex) buildTermsQuery(terms []string) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if len(strings.Fields(term)) > 1 {
			pq := bleve.NewMatchPhraseQuery(term)
			pq.SetField("text")
			queries = append(queries, pq)
			continue
		}
		mq := bleve.NewMatchQuery(term)
		mq.SetField("text")
		if b.fuzziness > 0 {
			mq.SetFuzziness(b.fuzziness)
		}
		queries = append(queries, mq)
	}
	switch len(queries) {
	case 0:
		return nil
	case 1:
		return queries[0]
	default:
		return bleve.NewDisjunctionQuery(queries...)
	}
}

// DeleteFile removes every chunk of fileID.
func (b *BleveIndex) DeleteFile(ctx context.Context, fileID string) error {
	return b.deleteWhere(ctx, "file_id", fileID)
}

// DeleteThread removes every chunk of threadID.
func (b *BleveIndex) DeleteThread(ctx context.Context, threadID string) error {
	return b.deleteWhere(ctx, "thread_id", threadID)
}

func (b *BleveIndex) deleteWhere(ctx context.Context, field, value string) error {
	for {
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		req := bleve.NewSearchRequest(q)
		req.Size = deleteBatchSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve delete lookup failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve delete failed: %w", err)
		}
	}
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

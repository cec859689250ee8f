package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/enhance"
	"github.com/hyperjump/yomu/internal/keyword"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/vector"
	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	DefaultTopK           = 5
	DefaultMinScore       = 0.3
	DefaultSmartThreshold = 50000

	// retrievalConcurrency bounds how many files are searched at once.
	retrievalConcurrency = 4

	chunkSeparator = "\n\n---\n\n"
)

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) (embedding.Vector, error)
}

// QueryEnhancer rewrites a query for retrieval. It never fails; a failed
// enhancement returns the query unchanged.
type QueryEnhancer interface {
	EnhanceQuery(ctx context.Context, query string, structures []models.DocumentStructure) enhance.EnhancedQuery
}

// ContextOptions controls one BuildRAGContext call.
type ContextOptions struct {
	TopK            int
	MinScore        float64
	UseEnhancement  bool
	UseHybridSearch bool
	// Mode "" uses the builder's default mode.
	Mode            models.RetrievalMode
	IncludeOverview bool
}

// DefaultContextOptions returns topK 5, minScore 0.3 with enhancement and
// hybrid search enabled.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		TopK:            DefaultTopK,
		MinScore:        DefaultMinScore,
		UseEnhancement:  true,
		UseHybridSearch: true,
	}
}

// Builder assembles RAG context for a query over a set of files.
type Builder struct {
	store          storage.VectorStore
	searcher       *vector.Searcher
	embedder       QueryEmbedder
	enhancer       QueryEnhancer
	scorer         keyword.Scorer
	hybrid         HybridOptions
	mode           models.RetrievalMode
	smartThreshold int
	logger         *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithEnhancer enables query enhancement. Without one, UseEnhancement is ignored.
func WithEnhancer(e QueryEnhancer) BuilderOption {
	return func(b *Builder) { b.enhancer = e }
}

// WithKeywordScorer replaces the default grep scorer.
func WithKeywordScorer(s keyword.Scorer) BuilderOption {
	return func(b *Builder) {
		if s != nil {
			b.scorer = s
		}
	}
}

// WithHybridWeights overrides the fusion weights.
func WithHybridWeights(vectorWeight, keywordWeight float64) BuilderOption {
	return func(b *Builder) {
		b.hybrid.VectorWeight = vectorWeight
		b.hybrid.KeywordWeight = keywordWeight
	}
}

// WithDefaultMode sets the mode used when ContextOptions.Mode is empty.
func WithDefaultMode(m models.RetrievalMode) BuilderOption {
	return func(b *Builder) {
		if m != "" && m.Valid() {
			b.mode = m
		}
	}
}

// WithSmartThreshold sets the combined text length (characters) up to which
// smart mode uses full text.
func WithSmartThreshold(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.smartThreshold = n
		}
	}
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder over store using embedder for query vectors.
func NewBuilder(store storage.VectorStore, embedder QueryEmbedder, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:          store,
		embedder:       embedder,
		scorer:         keyword.GrepScorer{},
		hybrid:         DefaultHybridOptions(),
		mode:           models.ModeRAG,
		smartThreshold: DefaultSmartThreshold,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = utils.OrNop(b.logger)
	b.searcher = vector.NewSearcher(store, b.logger)
	return b
}

// BuildThreadContext is BuildRAGContext over every file of threadID.
func (b *Builder) BuildThreadContext(ctx context.Context, threadID, query string, opts ContextOptions) models.RAGContext {
	files, err := b.store.GetFilesByThreadID(ctx, threadID)
	if err != nil {
		b.logger.Error("failed to list thread files", zap.String("thread_id", threadID), zap.Error(err))
		return models.RAGContext{Query: query}
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return b.BuildRAGContext(ctx, ids, query, opts)
}

// BuildRAGContext retrieves the chunks of fileIDs most relevant to query and
// renders them as prompt context. It never fails: retrieval errors are logged
// and yield an empty context so the chat can proceed without augmentation.
func (b *Builder) BuildRAGContext(ctx context.Context, fileIDs []string, query string, opts ContextOptions) models.RAGContext {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	mode := opts.Mode
	if mode == "" {
		mode = b.mode
	}
	empty := models.RAGContext{Query: query, Mode: mode}
	if len(fileIDs) == 0 {
		return empty
	}

	switch mode {
	case models.ModeFullText:
		rc, err := b.buildFullText(ctx, fileIDs, opts.IncludeOverview, nil)
		if err != nil {
			b.logger.Error("full-text context failed", zap.Error(err))
			return empty
		}
		rc.Query = query
		return rc
	case models.ModeSmart:
		chunks, total := b.loadChunks(ctx, fileIDs)
		if total <= b.smartThreshold {
			b.logger.Debug("smart mode using full text",
				zap.Int("text_length", total),
				zap.Int("threshold", b.smartThreshold))
			rc, err := b.buildFullText(ctx, fileIDs, opts.IncludeOverview, chunks)
			if err != nil {
				b.logger.Error("full-text context failed", zap.Error(err))
				return empty
			}
			rc.Query = query
			rc.Mode = models.ModeSmart
			return rc
		}
		b.logger.Debug("smart mode using retrieval",
			zap.Int("text_length", total),
			zap.Int("threshold", b.smartThreshold))
	}

	rc, err := b.buildRetrieval(ctx, fileIDs, query, opts)
	if err != nil {
		b.logger.Error("RAG context failed", zap.String("query", query), zap.Error(err))
		return empty
	}
	rc.Mode = mode
	return rc
}

type fileHits struct {
	vector     []models.ScoredChunk
	keyword    []models.ScoredChunk
	keywordRan bool
}

func (b *Builder) buildRetrieval(ctx context.Context, fileIDs []string, query string, opts ContextOptions) (models.RAGContext, error) {
	files := b.loadFiles(ctx, fileIDs)

	enhancedQuery := query
	terms := []string{query}
	if opts.UseEnhancement && b.enhancer != nil {
		eq := b.enhancer.EnhanceQuery(ctx, query, structuresOf(orderedFiles(fileIDs, files)))
		enhancedQuery = eq.EnhancedQuery
		switch {
		case len(eq.SearchTerms) > 0:
			terms = eq.SearchTerms
		case len(eq.KeyConcepts) > 0:
			terms = eq.KeyConcepts
		}
	}

	qv, err := b.embedder.GenerateEmbedding(ctx, enhancedQuery)
	if err != nil {
		return models.RAGContext{}, err
	}

	hits := make([]fileHits, len(fileIDs))
	var g errgroup.Group
	g.SetLimit(retrievalConcurrency)
	for i, id := range fileIDs {
		i, id := i, id
		if files[id] == nil {
			continue
		}
		g.Go(func() error {
			hits[i] = b.searchFile(ctx, qv, files[id], terms, opts)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return models.RAGContext{}, err
	}

	var vectorResults, keywordResults []models.ScoredChunk
	var keywordRan bool
	for _, h := range hits {
		vectorResults = append(vectorResults, h.vector...)
		keywordResults = append(keywordResults, h.keyword...)
		keywordRan = keywordRan || h.keywordRan
	}

	limit := opts.TopK * len(fileIDs)
	final := vectorResults
	if opts.UseHybridSearch && keywordRan {
		hybrid := b.hybrid
		hybrid.TopK = limit
		final = HybridSearch(vectorResults, keywordResults, hybrid)
	}
	final = dedupe(final, limit)

	rc := models.RAGContext{
		Query:          query,
		RelevantChunks: final,
		SearchTerms:    terms,
	}
	if len(final) > 0 {
		var sb strings.Builder
		if opts.IncludeOverview {
			if overview := renderOverview(orderedFiles(fileIDs, files)); overview != "" {
				sb.WriteString(overview)
				sb.WriteString("=== RELEVANT DOCUMENT EXCERPTS ===\n\n")
			}
		}
		sb.WriteString(renderExcerpts(final))
		rc.ContextText = sb.String()
	}
	b.logger.Debug("RAG context built",
		zap.Int("files", len(fileIDs)),
		zap.Int("vector_results", len(vectorResults)),
		zap.Int("keyword_results", len(keywordResults)),
		zap.Int("chunks", len(final)),
		zap.Int("context_length", len(rc.ContextText)))
	return rc, nil
}

// searchFile runs the vector and keyword signals for one file. Failures are
// logged and leave that signal empty.
func (b *Builder) searchFile(ctx context.Context, qv embedding.Vector, file *models.FileIndex, terms []string, opts ContextOptions) fileHits {
	var h fileHits
	vr, err := b.searcher.SearchSimilarChunksInFile(ctx, qv, file.ID, opts.TopK*2, opts.MinScore)
	if err != nil {
		b.logger.Warn("vector search failed", zap.String("file_id", file.ID), zap.Error(err))
	}
	h.vector = vr

	if !opts.UseHybridSearch || len(terms) == 0 {
		return h
	}
	chunks, err := b.store.GetChunksByFileID(ctx, file.ID)
	if err != nil {
		b.logger.Warn("failed to load chunks for keyword search", zap.String("file_id", file.ID), zap.Error(err))
		return h
	}
	if len(chunks) == 0 {
		return h
	}
	kr, err := b.scorer.ScoreChunks(ctx, file.ID, chunks, terms)
	if err != nil {
		b.logger.Warn("keyword search failed", zap.String("file_id", file.ID), zap.Error(err))
		return h
	}
	for i := range kr {
		if kr[i].FileName == "" {
			kr[i].FileName = file.FileName
		}
	}
	h.keyword = kr
	h.keywordRan = true
	return h
}

// loadFiles returns the stored record of every known file in fileIDs.
// Missing files are logged and left out.
func (b *Builder) loadFiles(ctx context.Context, fileIDs []string) map[string]*models.FileIndex {
	files := make(map[string]*models.FileIndex, len(fileIDs))
	for _, id := range fileIDs {
		f, err := b.store.GetFileMetadata(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				b.logger.Warn("referenced file not found", zap.String("file_id", id))
			} else {
				b.logger.Warn("failed to load file", zap.String("file_id", id), zap.Error(err))
			}
			continue
		}
		files[id] = f
	}
	return files
}

// loadChunks returns each file's chunks and their combined text length in characters.
func (b *Builder) loadChunks(ctx context.Context, fileIDs []string) (map[string][]models.Chunk, int) {
	out := make(map[string][]models.Chunk, len(fileIDs))
	var total int
	for _, id := range fileIDs {
		chunks, err := b.store.GetChunksByFileID(ctx, id)
		if err != nil {
			b.logger.Warn("failed to check file size", zap.String("file_id", id), zap.Error(err))
			continue
		}
		out[id] = chunks
		for _, c := range chunks {
			total += utf8.RuneCountInString(c.Text)
		}
	}
	return out, total
}

// buildFullText returns every chunk of every file with score 1. chunks may
// carry already loaded chunks keyed by file ID.
func (b *Builder) buildFullText(ctx context.Context, fileIDs []string, includeOverview bool, chunks map[string][]models.Chunk) (models.RAGContext, error) {
	if chunks == nil {
		chunks, _ = b.loadChunks(ctx, fileIDs)
	}
	if err := ctx.Err(); err != nil {
		return models.RAGContext{}, err
	}
	files := b.loadFiles(ctx, fileIDs)

	rc := models.RAGContext{Mode: models.ModeFullText, IsFullText: true}
	var blocks []string
	for _, id := range fileIDs {
		f := files[id]
		if f == nil || len(chunks[id]) == 0 {
			continue
		}
		texts := make([]string, 0, len(chunks[id]))
		for _, c := range chunks[id] {
			rc.RelevantChunks = append(rc.RelevantChunks, models.ScoredChunk{
				FileID:     c.FileID,
				FileName:   f.FileName,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				Score:      1.0,
			})
			texts = append(texts, c.Text)
		}
		blocks = append(blocks, fmt.Sprintf("[Document %d: %s]\n%s", len(blocks)+1, f.FileName, strings.Join(texts, "\n\n")))
	}
	if len(blocks) == 0 {
		return rc, nil
	}

	var sb strings.Builder
	if includeOverview {
		if overview := renderOverview(orderedFiles(fileIDs, files)); overview != "" {
			sb.WriteString(overview)
			sb.WriteString("=== FULL DOCUMENT CONTENT ===\n\n")
		}
	}
	sb.WriteString(strings.Join(blocks, chunkSeparator))
	rc.ContextText = sb.String()
	return rc, nil
}

// dedupe sorts by descending score, drops repeats of the same text at the same
// chunk index and truncates to limit.
func dedupe(results []models.ScoredChunk, limit int) []models.ScoredChunk {
	sorted := make([]models.ScoredChunk, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	type key struct {
		text  string
		index int
	}
	seen := make(map[key]struct{}, len(sorted))
	out := sorted[:0]
	for _, r := range sorted {
		k := key{r.Text, r.ChunkIndex}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func renderExcerpts(chunks []models.ScoredChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		name := c.FileName
		if name == "" {
			name = c.FileID
		}
		blocks[i] = fmt.Sprintf("[Document %d: %s]\n%s", i+1, name, c.Text)
	}
	return strings.Join(blocks, chunkSeparator)
}

// renderOverview lists summary, table of contents, keywords and topics of
// every file that has metadata. It returns "" when none has.
func renderOverview(files []*models.FileIndex) string {
	var sb strings.Builder
	for _, f := range files {
		md := f.Metadata
		if md == nil {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("=== DOCUMENT OVERVIEW ===\n\n")
		}
		fmt.Fprintf(&sb, "Document: %s\n", f.FileName)
		if md.Summary != "" {
			fmt.Fprintf(&sb, "\nSummary:\n%s\n", md.Summary)
		}
		if len(md.TableOfContents) > 0 {
			sb.WriteString("\nTable of Contents:\n")
			for _, item := range md.TableOfContents {
				sb.WriteString(strings.Repeat("  ", max(item.Level-1, 0)))
				sb.WriteString(item.Title)
				if item.PageNumber > 0 {
					fmt.Fprintf(&sb, " (page %d)", item.PageNumber)
				}
				sb.WriteString("\n")
			}
		}
		if len(md.Keywords) > 0 {
			fmt.Fprintf(&sb, "\nKeywords: %s\n", strings.Join(md.Keywords, ", "))
		}
		if len(md.Topics) > 0 {
			fmt.Fprintf(&sb, "Topics: %s\n", strings.Join(md.Topics, ", "))
		}
		sb.WriteString("\n---\n\n")
	}
	return sb.String()
}

func orderedFiles(fileIDs []string, files map[string]*models.FileIndex) []*models.FileIndex {
	out := make([]*models.FileIndex, 0, len(files))
	for _, id := range fileIDs {
		if f := files[id]; f != nil {
			out = append(out, f)
		}
	}
	return out
}

func structuresOf(files []*models.FileIndex) []models.DocumentStructure {
	var out []models.DocumentStructure
	for _, f := range files {
		if f.Metadata == nil || len(f.Metadata.TableOfContents) == 0 {
			continue
		}
		out = append(out, models.DocumentStructure{
			FileName:        f.FileName,
			TableOfContents: f.Metadata.TableOfContents,
		})
	}
	return out
}

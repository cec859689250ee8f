package indexer

import (
	"context"
	"math"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/tokens"
)

// SemanticOptions configures SemanticChunker. Zero numeric fields take the defaults.
type SemanticOptions struct {
	ChunkSizeTokens    int
	ChunkOverlapRatio  float64
	MinChunkSizeTokens int
	MaxChunkSizeTokens int
	PreserveSentences  bool
	PreserveSections   bool
}

// DefaultSemanticOptions returns 768-token chunks with 17.5% overlap, bounded to 512-1024 tokens.
func DefaultSemanticOptions() SemanticOptions {
	return SemanticOptions{
		ChunkSizeTokens:    768,
		ChunkOverlapRatio:  0.175,
		MinChunkSizeTokens: 512,
		MaxChunkSizeTokens: 1024,
		PreserveSentences:  true,
		PreserveSections:   true,
	}
}

func (o SemanticOptions) withDefaults() SemanticOptions {
	d := DefaultSemanticOptions()
	if o.ChunkSizeTokens <= 0 {
		o.ChunkSizeTokens = d.ChunkSizeTokens
	}
	if o.ChunkOverlapRatio <= 0 || o.ChunkOverlapRatio >= 1 {
		o.ChunkOverlapRatio = d.ChunkOverlapRatio
	}
	if o.MinChunkSizeTokens <= 0 {
		o.MinChunkSizeTokens = d.MinChunkSizeTokens
	}
	if o.MaxChunkSizeTokens <= 0 {
		o.MaxChunkSizeTokens = d.MaxChunkSizeTokens
	}
	if o.MinChunkSizeTokens > o.ChunkSizeTokens {
		o.MinChunkSizeTokens = o.ChunkSizeTokens
	}
	if o.MaxChunkSizeTokens < o.ChunkSizeTokens {
		o.MaxChunkSizeTokens = o.ChunkSizeTokens
	}
	return o
}

// SemanticChunker splits text to a token budget, snapping to section
// headings and sentence ends before falling back to character boundaries.
type SemanticChunker struct {
	opts SemanticOptions
}

// NewSemanticChunker creates a semantic chunker.
func NewSemanticChunker(opts SemanticOptions) *SemanticChunker {
	return &SemanticChunker{opts: opts.withDefaults()}
}

// SemanticChunkText splits text with opts.
func SemanticChunkText(text string, opts SemanticOptions) []models.Chunk {
	chunks, _ := NewSemanticChunker(opts).Split(context.Background(), text)
	return chunks
}

// budget holds the token options converted to rune counts.
type budget struct {
	charsPerToken float64
	chunkChars    int
	minChars      int
	maxChars      int
	overlapChars  int
}

func newBudget(text string, o SemanticOptions) budget {
	cpt := 3.0
	if tokens.DetectChineseRatio(text) > 0.5 {
		cpt = 2.5
	}
	chunkChars := int(math.Floor(float64(o.ChunkSizeTokens) * cpt))
	return budget{
		charsPerToken: cpt,
		chunkChars:    chunkChars,
		minChars:      int(math.Floor(float64(o.MinChunkSizeTokens) * cpt)),
		maxChars:      int(math.Floor(float64(o.MaxChunkSizeTokens) * cpt)),
		overlapChars:  int(math.Floor(float64(chunkChars) * o.ChunkOverlapRatio)),
	}
}

// Split runs the semantic chunking loop. Offsets are rune offsets.
func (c *SemanticChunker) Split(ctx context.Context, text string) ([]models.Chunk, error) {
	o := c.opts
	runes := []rune(text)
	n := len(runes)
	b := newBudget(text, o)

	var sections []Boundary
	if o.PreserveSections {
		sections = DetectSectionBoundaries(text)
	}
	var sentences []int
	if o.PreserveSentences {
		sentences = DetectSentenceBoundaries(text)
	}

	var chunks []models.Chunk
	emit := func(t string, start, end int) {
		chunks = append(chunks, models.Chunk{
			Text:       t,
			ChunkIndex: len(chunks),
			StartChar:  start,
			EndChar:    end,
			Metadata: models.ChunkMetadata{
				Strategy:     models.StrategySemantic,
				Tokens:       tokens.EstimateTokens(t),
				ChineseRatio: tokens.DetectChineseRatio(t),
				IsLastChunk:  end >= n,
			},
		})
	}

	cur := 0
	for cur < n {
		if len(chunks) > 0 && len(chunks)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if n-cur <= b.minChars {
			if t := strings.TrimSpace(string(runes[cur:n])); t != "" {
				emit(t, cur, n)
			}
			break
		}

		targetEnd := min(cur+b.chunkChars, n)
		split := c.findSplitPoint(runes, cur, targetEnd, sections, sentences)
		final := min(split, cur+b.maxChars)
		if final <= cur {
			final = targetEnd
		}

		chunkText := strings.TrimSpace(string(runes[cur:final]))
		if chunkText != "" {
			tok := tokens.EstimateTokens(chunkText)
			if tok >= o.MinChunkSizeTokens || len(chunks) == 0 || final >= n {
				emit(chunkText, cur, final)
			} else {
				extEnd := min(final+int(float64(o.MinChunkSizeTokens-tok)*b.charsPerToken), n)
				extText := strings.TrimSpace(string(runes[cur:extEnd]))
				if tokens.EstimateTokens(extText) >= o.MinChunkSizeTokens {
					emit(extText, cur, extEnd)
					cur = extEnd
					continue
				}
				// Extension fell short; keep the undersized chunk.
				emit(chunkText, cur, final)
			}
		}
		if final >= n {
			break
		}

		// Advance by at least the minimum chunk size, but never past the
		// emitted chunk so the text stays covered.
		next := min(max(c.findOverlapStart(runes, final, b.overlapChars, sentences), cur+b.minChars), final)
		if next <= cur {
			next = cur + 1
		}
		cur = next
	}
	return chunks, nil
}

// findSplitPoint picks where the chunk starting at start should end.
// Thresholds are fractions of the window [start, targetEnd].
func (c *SemanticChunker) findSplitPoint(runes []rune, start, targetEnd int, sections []Boundary, sentences []int) int {
	span := float64(targetEnd - start)
	at := func(f float64) float64 { return float64(start) + span*f }

	if c.opts.PreserveSections {
		for i := len(sections) - 1; i >= 0; i-- {
			s := sections[i]
			if s.Start < start || s.End > targetEnd || float64(s.End) <= at(0.8) {
				continue
			}
			for _, next := range sections[i+1:] {
				if next.Start > s.End {
					if float64(next.Start) <= at(1.2) && next.Start <= len(runes) {
						return next.Start
					}
					break
				}
			}
			if s.End > start {
				return s.End
			}
		}
		for _, s := range sections {
			if s.Start > start && s.Start <= targetEnd && float64(s.Start) <= at(0.5) {
				return s.Start
			}
		}
	}

	if c.opts.PreserveSentences {
		for i := len(sentences) - 1; i >= 0; i-- {
			s := sentences[i]
			if s > start && s <= targetEnd && float64(s) >= at(0.8) {
				return s
			}
		}
	}

	if p := lastIndexRunes(runes, paragraphBreak, targetEnd); p > start && float64(p) > at(0.7) {
		return p + len(paragraphBreak)
	}
	if l := lastIndexRunes(runes, lineBreak, targetEnd); l > start && float64(l) > at(0.6) {
		return l + 1
	}
	if s := lastIndexRunes(runes, space, targetEnd); s > start && float64(s) > at(0.5) {
		return s + 1
	}
	return targetEnd
}

// findOverlapStart returns where the next chunk should begin so that it
// overlaps the previous one by roughly overlapChars.
func (c *SemanticChunker) findOverlapStart(runes []rune, chunkEnd, overlapChars int, sentences []int) int {
	target := chunkEnd - overlapChars
	lo := float64(target) - float64(overlapChars)*0.2

	if c.opts.PreserveSentences {
		best, bestDist := -1, math.MaxInt
		for _, s := range sentences {
			if s >= chunkEnd {
				break
			}
			if float64(s) < lo {
				continue
			}
			if d := abs(s - target); d < bestDist {
				best, bestDist = s, d
			}
		}
		if best >= 0 {
			return best
		}
	}

	if p := lastIndexRunes(runes, paragraphBreak, chunkEnd-1); p >= 0 && float64(p) >= lo {
		return min(p+len(paragraphBreak), chunkEnd)
	}
	return max(0, target)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

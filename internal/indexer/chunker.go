// Package indexer turns documents into stored, embedded chunks: text
// preprocessing, the character and semantic chunkers, and the ingestion pipeline.
package indexer

import (
	"context"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// cancelCheckEvery is how many chunks are produced between context checks.
	cancelCheckEvery = 64
)

// Splitter splits document text into ordered chunks.
type Splitter interface {
	Split(ctx context.Context, text string) ([]models.Chunk, error)
}

// Chunker splits text into overlapping character windows, preferring to cut
// at a paragraph break, then a line break, then a space.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// Non-positive sizes fall back to the defaults.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// SplitText splits text with the given size and overlap.
func SplitText(text string, chunkSize, chunkOverlap int) []models.Chunk {
	chunks, _ := NewChunker(chunkSize, chunkOverlap).Split(context.Background(), text)
	return chunks
}

// Split walks the text left to right and emits chunks with sequential indexes.
// Every chunk but the end-of-text remainder is trimmed. StartChar and EndChar
// are the untrimmed rune offsets of each slice.
// It returns ctx.Err() if the context is cancelled mid-run.
func (c *Chunker) Split(ctx context.Context, text string) ([]models.Chunk, error) {
	runes := []rune(text)
	n := len(runes)
	var chunks []models.Chunk
	size := c.chunkSize
	cur := 0
	for cur < n {
		if len(chunks) > 0 && len(chunks)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		end := min(cur+size, n)
		if end >= n {
			// The remainder is kept verbatim.
			if rest := string(runes[cur:n]); strings.TrimSpace(rest) != "" {
				chunks = append(chunks, newTextChunk(rest, len(chunks), cur, n))
			}
			break
		}

		split := end
		if p := lastIndexRunes(runes, paragraphBreak, end); p > cur && float64(p) > float64(end)-float64(size)*0.5 {
			split = p + len(paragraphBreak)
		} else if l := lastIndexRunes(runes, lineBreak, end); l > cur && float64(l) > float64(end)-float64(size)*0.3 {
			split = l + 1
		} else if s := lastIndexRunes(runes, space, end); s > cur && float64(s) > float64(end)-float64(size)*0.2 {
			split = s + 1
		}

		if t := strings.TrimSpace(string(runes[cur:split])); t != "" {
			chunks = append(chunks, newTextChunk(t, len(chunks), cur, split))
		}
		cur = max(split-c.chunkOverlap, cur+1)
	}
	return chunks, nil
}

func newTextChunk(text string, index, start, end int) models.Chunk {
	return models.Chunk{
		Text:       text,
		ChunkIndex: index,
		StartChar:  start,
		EndChar:    end,
		Metadata:   models.ChunkMetadata{Strategy: models.StrategyText},
	}
}

var (
	paragraphBreak = []rune("\n\n")
	lineBreak      = []rune("\n")
	space          = []rune(" ")
)

// lastIndexRunes returns the largest index i <= from at which sub occurs in
// runes, or -1.
func lastIndexRunes(runes, sub []rune, from int) int {
	if len(sub) == 0 {
		return min(from, len(runes))
	}
	start := min(from, len(runes)-len(sub))
	for i := start; i >= 0; i-- {
		match := true
		for j := range sub {
			if runes[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

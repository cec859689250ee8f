package keyword

import (
	"context"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

func chunksOf(texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, text := range texts {
		out[i] = models.Chunk{FileID: "f", ChunkIndex: i, Text: text}
	}
	return out
}

func TestGrepSearch(t *testing.T) {
	results := GrepSearch(chunksOf("apple pie", "banana bread", "apple tart"), []string{"apple"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkIndex != 0 || results[1].ChunkIndex != 2 {
		t.Errorf("unexpected order: %d, %d", results[0].ChunkIndex, results[1].ChunkIndex)
	}
	if results[0].Score != results[1].Score || results[0].Score <= 0 {
		t.Errorf("scores should be equal and positive: %v, %v", results[0].Score, results[1].Score)
	}
	if results[0].Score != 0.5 {
		t.Errorf("score = %v, want 0.5", results[0].Score)
	}
}

func TestGrepSearch_scoring(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms []string
		want  float64
	}{
		{"case insensitive", "APPLE Apple apple", []string{"apple"}, 1},
		{"averaged over terms", "apple", []string{"apple", "kiwi"}, 0.25},
		{"blank terms still count toward the average", "apple", []string{"apple", " "}, 0.25},
		{"clamped", "database database database", []string{"database"}, 1},
		{"regex characters are literal", "costs $5.00 (approx)", []string{"$5.00", "(approx)"}, 0.65},
		{"runes not bytes", "日本語のテキスト", []string{"日本語"}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := GrepSearch(chunksOf(tt.text), tt.terms)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if diff := results[0].Score - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("score = %v, want %v", results[0].Score, tt.want)
			}
		})
	}
}

func TestGrepSearch_noTerms(t *testing.T) {
	if got := GrepSearch(chunksOf("anything"), nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := GrepSearch(chunksOf("anything"), []string{"  ", ""}); got != nil {
		t.Errorf("blank terms should be ignored, got %v", got)
	}
}

func TestGrepSearch_sortedDescending(t *testing.T) {
	results := GrepSearch(chunksOf("one match here", "match match", "no"), []string{"match"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkIndex != 1 {
		t.Errorf("chunk with more matches should rank first, got %d", results[0].ChunkIndex)
	}
}

func TestGrepScorer(t *testing.T) {
	results, err := GrepScorer{}.ScoreChunks(context.Background(), "f", chunksOf("alpha", "beta"), []string{"beta"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ChunkIndex != 1 {
		t.Errorf("unexpected results %+v", results)
	}
}

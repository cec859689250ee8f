package indexer

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

func TestSplitText_Empty(t *testing.T) {
	if chunks := SplitText("", 1000, 200); len(chunks) != 0 {
		t.Errorf("empty text should return no chunks, got %d", len(chunks))
	}
	if chunks := SplitText("   \n\t  ", 1000, 200); len(chunks) != 0 {
		t.Errorf("whitespace text should return no chunks, got %d", len(chunks))
	}
}

func TestSplitText_ExactlyChunkSize(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := SplitText(text, DefaultChunkSize, DefaultChunkOverlap)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Error("single chunk should equal input")
	}
	if chunks[0].StartChar != 0 || chunks[0].EndChar != 1000 {
		t.Errorf("span = [%d,%d)", chunks[0].StartChar, chunks[0].EndChar)
	}
	if chunks[0].Metadata.Strategy != models.StrategyText {
		t.Errorf("strategy = %q", chunks[0].Metadata.Strategy)
	}
}

func TestSplitText_ShortTextIsKeptVerbatim(t *testing.T) {
	text := "  hello world \n"
	chunks := SplitText(text, 1000, 200)
	if len(chunks) != 1 || chunks[0].Text != text {
		t.Fatalf("got %+v", chunks)
	}
	if chunks[0].StartChar != 0 || chunks[0].EndChar != len(text) {
		t.Errorf("span = [%d,%d)", chunks[0].StartChar, chunks[0].EndChar)
	}
}

func TestSplitText_ParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("a", 300)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := SplitText(text, 350, 50)

	// Each cut lands after a paragraph break and the next window steps back
	// by the overlap, so three paragraphs give three chunks.
	want := []struct{ start, end int }{{0, 302}, {252, 604}, {554, 904}}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		if chunks[i].StartChar != w.start || chunks[i].EndChar != w.end {
			t.Errorf("chunk %d span = [%d,%d), want [%d,%d)", i, chunks[i].StartChar, chunks[i].EndChar, w.start, w.end)
		}
	}
	if chunks[0].Text != para {
		t.Errorf("first chunk should be the first paragraph, got %d chars", len(chunks[0].Text))
	}
	if !strings.HasSuffix(chunks[1].Text, para) || !strings.HasSuffix(chunks[2].Text, para) {
		t.Error("later chunks should end with a whole paragraph")
	}
}

func TestSplitText_PrefersLineThenSpace(t *testing.T) {
	line := strings.Repeat("b", 80)
	text := line + "\n" + line + "\n" + line
	chunks := SplitText(text, 100, 0)
	if chunks[0].EndChar != 81 {
		t.Errorf("expected split after first line break, got %d", chunks[0].EndChar)
	}

	words := strings.Repeat("word ", 50)
	chunks = SplitText(words, 52, 0)
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "wor ") || strings.HasSuffix(ch.Text, "wo") {
			t.Errorf("chunk %d split mid-word: %q", ch.ChunkIndex, ch.Text)
		}
	}
}

func TestSplitText_Invariants(t *testing.T) {
	texts := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120),
		strings.Repeat("第一段落包含中文文本。\n", 300),
		strings.Repeat("x", 5000),
		"short\n\nparagraphs\n\nonly",
	}
	for _, text := range texts {
		chunks := SplitText(text, 200, 40)
		n := len([]rune(text))
		covered := 0
		for i, ch := range chunks {
			if ch.ChunkIndex != i {
				t.Fatalf("chunk index %d at position %d", ch.ChunkIndex, i)
			}
			if ch.StartChar < 0 || ch.StartChar >= ch.EndChar || ch.EndChar > n {
				t.Fatalf("invalid span [%d,%d) for len %d", ch.StartChar, ch.EndChar, n)
			}
			runes := []rune(text)
			if i == len(chunks)-1 && ch.EndChar == n {
				if ch.Text != string(runes[ch.StartChar:ch.EndChar]) {
					t.Fatalf("last chunk should be the verbatim remainder: %q", ch.Text)
				}
			} else if ch.Text == "" || ch.Text != strings.TrimSpace(ch.Text) {
				t.Fatalf("chunk %d not trimmed: %q", i, ch.Text)
			}
			if ch.StartChar > covered {
				t.Fatalf("gap before chunk %d: covered up to %d, starts at %d", i, covered, ch.StartChar)
			}
			covered = max(covered, ch.EndChar)
		}
		if covered != n {
			t.Errorf("coverage ends at %d, want %d", covered, n)
		}
	}
}

func TestSplitText_Idempotent(t *testing.T) {
	text := strings.Repeat("Repeatable chunking keeps identities stable.\n", 80)
	a := SplitText(text, 300, 60)
	b := SplitText(text, 300, 60)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			t.Errorf("chunk %d differs", i)
		}
	}
}

func TestChunker_SplitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChunker(10, 0).Split(ctx, strings.Repeat("abcdefghij", 1000))
	if err == nil {
		t.Error("expected context error")
	}
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -5)
	if c.chunkSize != DefaultChunkSize || c.chunkOverlap != 0 {
		t.Errorf("got size=%d overlap=%d", c.chunkSize, c.chunkOverlap)
	}
}

func TestLastIndexRunes(t *testing.T) {
	r := []rune("ab\n\ncd\n\nef")
	if got := lastIndexRunes(r, paragraphBreak, len(r)); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
	if got := lastIndexRunes(r, paragraphBreak, 5); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
	if got := lastIndexRunes(r, []rune("zz"), len(r)); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}

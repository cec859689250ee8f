package embedding

import (
	"strings"
	"unicode"

	"github.com/hyperjump/yomu/internal/tokens"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// SimpleTokenizer maps lowercased words, and each CJK character, to
// hash-derived token IDs. It is a vocabulary-free stand-in for a real
// WordPiece tokenizer.
type SimpleTokenizer struct{}

// Tokenize produces [CLS] tokens... [SEP] padded to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word)%vocabSize) + 1000
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepToken
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on whitespace and punctuation, lowercases words and
// emits every CJK character as its own word.
func SplitWords(text string) []string {
	var words []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case tokens.IsCJK(r):
			flush()
			if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
				words = append(words, string(r))
			}
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			flush()
		default:
			word.WriteRune(unicode.ToLower(r))
		}
	}
	flush()
	return words
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// Package tokens estimates LLM token counts from character statistics.
//
// The estimate is a heuristic, not a tokenizer: CJK characters are counted
// at roughly two per token and everything else at roughly four per token.
// Callers should expect around 20% error.
package tokens

import "math"

const (
	cjkCharsPerToken   = 2
	otherCharsPerToken = 4

	// charsPerToken is the flat ratio used by TokensToChars and CharsToTokens.
	charsPerToken = 3
)

// IsCJK reports whether r falls into the CJK ideograph, CJK punctuation, or
// full-width form ranges.
func IsCJK(r rune) bool {
	return (r >= 0x4e00 && r <= 0x9fa5) ||
		(r >= 0x3000 && r <= 0x303f) ||
		(r >= 0xff00 && r <= 0xffef)
}

// Count returns the number of CJK runes and the total number of runes in text.
func Count(text string) (cjk, total int) {
	for _, r := range text {
		total++
		if IsCJK(r) {
			cjk++
		}
	}
	return cjk, total
}

// EstimateTokens returns ceil(cjk/2) + ceil(other/4). Empty text yields 0.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	cjk, total := Count(text)
	other := total - cjk
	return ceilDiv(cjk, cjkCharsPerToken) + ceilDiv(other, otherCharsPerToken)
}

// DetectChineseRatio returns the fraction of runes in text that are CJK.
func DetectChineseRatio(text string) float64 {
	cjk, total := Count(text)
	if total == 0 {
		return 0
	}
	return float64(cjk) / float64(total)
}

// TokensToChars converts a token budget to an approximate character count.
func TokensToChars(t int) int {
	return int(math.Floor(float64(t) * charsPerToken))
}

// CharsToTokens converts a character count to an approximate token count.
func CharsToTokens(c int) int {
	return ceilDiv(c, charsPerToken)
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

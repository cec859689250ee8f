package indexer

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// BoundaryType classifies a structural boundary in a document.
type BoundaryType string

const (
	BoundarySection    BoundaryType = "section"
	BoundarySubsection BoundaryType = "subsection"
	BoundaryParagraph  BoundaryType = "paragraph"
)

// Boundary is a heading line or blank line, as rune offsets [Start, End).
type Boundary struct {
	Type  BoundaryType
	Start int
	End   int
	Level int
	Title string
}

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+\S`)
	numberedHeading = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s*[A-Z]`)
	allCapsHeading  = regexp.MustCompile(`^[A-Z][A-Z\s]{2,}$`)
	academicHeading = regexp.MustCompile(`(?i)^(abstract|introduction|methodology|results|discussion|conclusion|references?)\s*$`)
	sectionHeading  = regexp.MustCompile(`(?i)^section\s+\d+[.:]?`)
	chapterHeading  = regexp.MustCompile(`(?i)^chapter\s+\d+[.:]?`)
	numberingPrefix = regexp.MustCompile(`^\d+(?:\.\d+)*`)

	headingPatterns = []*regexp.Regexp{
		markdownHeading,
		numberedHeading,
		allCapsHeading,
		academicHeading,
		sectionHeading,
		chapterHeading,
	}

	sentenceEnd = regexp.MustCompile(`[.!?。！？]\s+`)
)

// DetectSectionBoundaries finds heading lines and interior blank lines.
// Offsets are in runes. The result is sorted by Start.
func DetectSectionBoundaries(text string) []Boundary {
	var boundaries []Boundary
	lines := strings.Split(text, "\n")
	pos := 0
	for i, line := range lines {
		lineLen := utf8.RuneCountInString(line)
		start, end := pos, pos+lineLen
		trimmed := strings.TrimSpace(line)

		if trimmed != "" && isHeading(trimmed) {
			level := headingLevel(line, trimmed)
			typ := BoundarySection
			if level > 1 {
				typ = BoundarySubsection
			}
			boundaries = append(boundaries, Boundary{Type: typ, Start: start, End: end, Level: level, Title: trimmed})
		}
		if trimmed == "" && i > 0 && i < len(lines)-1 {
			boundaries = append(boundaries, Boundary{Type: BoundaryParagraph, Start: start, End: end})
		}
		pos = end + 1
	}
	sort.SliceStable(boundaries, func(a, b int) bool { return boundaries[a].Start < boundaries[b].Start })
	return boundaries
}

func isHeading(trimmed string) bool {
	for _, p := range headingPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// headingLevel is the '#' count for markdown headings and the depth of
// dotted numbering ("2.3 Methods" is level 2) for numbered headings.
func headingLevel(line, trimmed string) int {
	if strings.HasPrefix(line, "#") {
		return len(line) - len(strings.TrimLeft(line, "#"))
	}
	if m := numberingPrefix.FindString(trimmed); m != "" && numberedHeading.MatchString(trimmed) {
		return strings.Count(m, ".") + 1
	}
	return 1
}

// DetectSentenceBoundaries returns rune offsets just past each sentence
// terminator and its trailing whitespace, bracketed by 0 and the text length.
func DetectSentenceBoundaries(text string) []int {
	matches := sentenceEnd.FindAllStringIndex(text, -1)
	ends := make([]int, len(matches))
	for i, m := range matches {
		ends[i] = m[1]
	}
	out := make([]int, 0, len(ends)+2)
	out = append(out, 0)
	out = append(out, byteOffsetsToRunes(text, ends)...)
	out = append(out, utf8.RuneCountInString(text))
	return out
}

// byteOffsetsToRunes converts ascending byte offsets in text to rune offsets.
func byteOffsetsToRunes(text string, offsets []int) []int {
	out := make([]int, len(offsets))
	runeIdx, bytePos, k := 0, 0, 0
	for k < len(offsets) {
		if bytePos >= offsets[k] || bytePos >= len(text) {
			out[k] = runeIdx
			k++
			continue
		}
		_, size := utf8.DecodeRuneInString(text[bytePos:])
		bytePos += size
		runeIdx++
	}
	return out
}

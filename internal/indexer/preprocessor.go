package indexer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
)

// Preprocess normalizes extracted text before chunking. Line endings become
// \n, control characters are dropped, runs of horizontal whitespace collapse
// to one space, trailing spaces are cut from every line and more than one
// blank line collapses to one. Paragraph breaks survive so the chunkers can
// split on them.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, text)
	text = spaceRunRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

package keyword

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

// GrepSearch scores chunks by case-insensitive literal occurrences of terms.
//
// Each match of a term contributes len(term)/10, so longer and rarer terms
// weigh more. The sum is divided by len(terms), blank terms included, and
// clamped to 1.
// Chunks without any match are left out. Results are sorted by descending
// score; ties keep input order.
func GrepSearch(chunks []models.Chunk, terms []string) []models.ScoredChunk {
	patterns := compileTerms(terms)
	if len(patterns) == 0 {
		return nil
	}
	var results []models.ScoredChunk
	for _, c := range chunks {
		var score float64
		for _, p := range patterns {
			matches := len(p.re.FindAllStringIndex(c.Text, -1))
			score += float64(matches) * p.weight
		}
		if score == 0 {
			continue
		}
		score = utils.ClampUnit(score / float64(len(terms)))
		results = append(results, models.ScoredChunk{
			FileID:       c.FileID,
			ChunkIndex:   c.ChunkIndex,
			Text:         c.Text,
			Score:        score,
			KeywordScore: score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

type termPattern struct {
	re     *regexp.Regexp
	weight float64
}

func compileTerms(terms []string) []termPattern {
	out := make([]termPattern, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		out = append(out, termPattern{
			re:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(term)),
			weight: float64(utf8.RuneCountInString(term)) / 10,
		})
	}
	return out
}

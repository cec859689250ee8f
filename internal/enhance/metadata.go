package enhance

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/yomu/internal/llm"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	tocTemperature      = 0.2
	metadataTemperature = 0.3

	tocTextChars      = 20000
	sampleThreshold   = 10000
	sampleChars       = 8000
	metadataTextChars = 6000
	fallbackSummary   = 200

	maxKeywords   = 15
	maxTopics     = 5
	maxKeyPhrases = 10
	maxTOCEntries = 100

	fallbackKeywords = 10
)

var (
	keywordRe = regexp.MustCompile(`\b\w{4,}\b`)
	topicRe   = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	phraseRe  = regexp.MustCompile(`\b\w+(?:\s+\w+){1,3}\b`)
)

type metadataReply struct {
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Topics     []string `json:"topics"`
	KeyPhrases []string `json:"keyPhrases"`
}

type tocReply struct {
	TableOfContents []struct {
		Title      string `json:"title"`
		Level      int    `json:"level"`
		PageNumber *int   `json:"pageNumber"`
	} `json:"tableOfContents"`
}

// GenerateDocumentMetadata describes a document for overviews and query
// enhancement. The table of contents is extracted from the head of the text
// while summary, keywords, topics and key phrases come from a sample of its
// start, middle and end; the two prompts run concurrently. Entities are always
// extracted locally. LLM failures never surface: an unparseable reply falls
// back to pattern extraction and a failed call leaves the summary as
// "Document: <fileName>".
func (e *Enhancer) GenerateDocumentMetadata(ctx context.Context, text, fileName string) models.DocumentMetadata {
	analysisText := text
	if len([]rune(text)) >= sampleThreshold {
		analysisText = smartSample(text, sampleChars)
	}

	var (
		g          errgroup.Group
		tocText    string
		tocErr     error
		metaText   string
		metaErr    error
		tocPrompt  = tocPromptFor(fileName, utils.RunePrefix(text, tocTextChars))
		metaPrompt = metadataPromptFor(fileName, analysisText)
	)
	g.Go(func() error {
		resp, err := e.gen.GenerateText(ctx, llm.Request{Model: e.model, Prompt: tocPrompt, Temperature: tocTemperature})
		tocText, tocErr = resp.Text, err
		return nil
	})
	g.Go(func() error {
		resp, err := e.gen.GenerateText(ctx, llm.Request{Model: e.model, Prompt: metaPrompt, Temperature: metadataTemperature})
		metaText, metaErr = resp.Text, err
		return nil
	})
	_ = g.Wait()

	md := models.DocumentMetadata{
		Summary:    "Document: " + fileName,
		Keywords:   []string{},
		Topics:     []string{},
		KeyPhrases: []string{},
		Entities:   ExtractEntities(text),
	}

	if tocErr != nil {
		e.logger.Warn("table of contents extraction failed", zap.String("file_name", fileName), zap.Error(tocErr))
	} else {
		md.TableOfContents = parseTOC(tocText)
		if md.TableOfContents == nil {
			e.logger.Debug("no table of contents in reply", zap.String("file_name", fileName))
		}
	}

	if metaErr != nil {
		e.logger.Warn("metadata generation failed", zap.String("file_name", fileName), zap.Error(metaErr))
		return md
	}
	var reply metadataReply
	if err := decodeJSONObject(metaText, &reply); err != nil {
		e.logger.Warn("metadata reply unusable, using pattern extraction",
			zap.String("file_name", fileName), zap.Error(err))
		reply = metadataReply{
			Summary:    utils.RunePrefix(metaText, fallbackSummary),
			Keywords:   extractKeywords(metaText),
			Topics:     extractTopics(metaText),
			KeyPhrases: extractPhrases(metaText),
		}
	}
	if s := strings.TrimSpace(reply.Summary); s != "" {
		md.Summary = s
	}
	md.Keywords = utils.Cap(nonNil(reply.Keywords), maxKeywords)
	md.Topics = utils.Cap(nonNil(reply.Topics), maxTopics)
	md.KeyPhrases = utils.Cap(nonNil(reply.KeyPhrases), maxKeyPhrases)

	e.logger.Debug("document metadata generated",
		zap.String("file_name", fileName),
		zap.Int("keywords", len(md.Keywords)),
		zap.Int("topics", len(md.Topics)),
		zap.Int("toc_entries", len(md.TableOfContents)))
	return md
}

// smartSample joins the start, middle and end of text, each a third of
// maxLength characters, with section markers between them.
func smartSample(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	third := maxLength / 3
	start := string(runes[:third])
	middleStart := (len(runes) - third) / 2
	middle := string(runes[middleStart : middleStart+third])
	end := string(runes[len(runes)-third:])
	return start + "\n\n[... middle section ...]\n\n" + middle + "\n\n[... end section ...]\n\n" + end
}

func tocPromptFor(fileName, text string) string {
	return fmt.Sprintf(`You are a document structure analyzer. Extract the COMPLETE table of contents from this document.

IMPORTANT:
- Read through the ENTIRE provided text to find ALL headings, sections, and chapters
- Include ALL levels of hierarchy (main sections, subsections, sub-subsections, etc.)
- Preserve the exact order as they appear in the document
- Extract page numbers if they are mentioned
- The "level" field indicates hierarchy: 1 = main section/chapter, 2 = subsection, 3 = sub-subsection, etc.

Document: %s
Text: %s

Return ONLY valid JSON:
{
  "tableOfContents": [
    {
      "title": "Exact section title as it appears",
      "level": 1,
      "pageNumber": null
    }
  ]
}`, fileName, text)
}

func metadataPromptFor(fileName, text string) string {
	excerpt := utils.RunePrefix(text, metadataTextChars)
	if len(excerpt) < len(text) {
		excerpt += "..."
	}
	return fmt.Sprintf(`Analyze this document and return ONLY valid JSON:

{
  "summary": "A comprehensive 3-5 sentence summary covering the main content, methodology, and findings",
  "keywords": ["10-15 key terms"],
  "topics": ["3-5 main topics"],
  "keyPhrases": ["5-10 important phrases"]
}

Document: %s
Text: %s`, fileName, excerpt)
}

// parseTOC returns at most maxTOCEntries titled entries, or nil when the reply
// holds no usable table of contents.
func parseTOC(reply string) []models.TOCEntry {
	var toc tocReply
	if err := decodeJSONObject(reply, &toc); err != nil {
		return nil
	}
	var out []models.TOCEntry
	for _, item := range toc.TableOfContents {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		entry := models.TOCEntry{Title: title, Level: item.Level}
		if entry.Level < 1 {
			entry.Level = 1
		}
		if item.PageNumber != nil && *item.PageNumber > 0 {
			entry.PageNumber = *item.PageNumber
		}
		out = append(out, entry)
	}
	return utils.Cap(out, maxTOCEntries)
}

// extractKeywords returns the most frequent words of four or more letters,
// lowercased; ties keep first-occurrence order.
func extractKeywords(text string) []string {
	words := keywordRe.FindAllString(strings.ToLower(text), -1)
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return utils.Cap(nonNil(order), fallbackKeywords)
}

// extractTopics returns the first distinct capitalised phrases.
func extractTopics(text string) []string {
	return utils.Cap(utils.Dedupe(topicRe.FindAllString(text, -1)), maxTopics)
}

// extractPhrases returns the first distinct runs of two to four words.
func extractPhrases(text string) []string {
	return utils.Cap(utils.Dedupe(phraseRe.FindAllString(text, -1)), maxKeyPhrases)
}

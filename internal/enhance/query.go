package enhance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/llm"
	"github.com/hyperjump/yomu/internal/models"
)

const queryTemperature = 0.3

// EnhancedQuery is a query rewritten for retrieval.
type EnhancedQuery struct {
	Original          string   `json:"original_query"`
	EnhancedQuery     string   `json:"enhanced_query"`
	KeyConcepts       []string `json:"key_concepts"`
	Synonyms          []string `json:"synonyms"`
	SearchTerms       []string `json:"search_terms"`
	SuggestedSections []string `json:"suggested_sections,omitempty"`
}

type enhancementReply struct {
	EnhancedQuery     string   `json:"enhancedQuery"`
	KeyConcepts       []string `json:"keyConcepts"`
	Synonyms          []string `json:"synonyms"`
	SearchTerms       []string `json:"searchTerms"`
	SuggestedSections []string `json:"suggestedSections"`
}

// Unenhanced returns query unchanged with empty term lists.
func Unenhanced(query string) EnhancedQuery {
	return EnhancedQuery{
		Original:      query,
		EnhancedQuery: query,
		KeyConcepts:   []string{},
		Synonyms:      []string{},
		SearchTerms:   []string{},
	}
}

// EnhanceQuery asks the LLM for a retrieval-friendly rewrite of query plus key
// concepts, synonyms and search terms. Tables of contents in structures are
// offered as hints about where the answer may live. On any failure the query
// is returned unchanged with empty lists; the error is only logged.
func (e *Enhancer) EnhanceQuery(ctx context.Context, query string, structures []models.DocumentStructure) EnhancedQuery {
	if strings.TrimSpace(query) == "" {
		return Unenhanced(query)
	}
	resp, err := e.gen.GenerateText(ctx, llm.Request{
		Model:       e.model,
		Prompt:      queryPrompt(query, structures),
		Temperature: queryTemperature,
	})
	if err != nil {
		e.logger.Warn("query enhancement failed", zap.Error(err))
		return Unenhanced(query)
	}
	var reply enhancementReply
	if err := decodeJSONObject(resp.Text, &reply); err != nil {
		e.logger.Warn("query enhancement reply unusable", zap.Error(err))
		return Unenhanced(query)
	}

	out := EnhancedQuery{
		Original:          query,
		EnhancedQuery:     reply.EnhancedQuery,
		KeyConcepts:       nonNil(reply.KeyConcepts),
		Synonyms:          nonNil(reply.Synonyms),
		SearchTerms:       reply.SearchTerms,
		SuggestedSections: reply.SuggestedSections,
	}
	if out.EnhancedQuery == "" {
		out.EnhancedQuery = query
	}
	if len(out.SearchTerms) == 0 {
		out.SearchTerms = reply.SuggestedSections
	}
	out.SearchTerms = nonNil(out.SearchTerms)
	e.logger.Debug("query enhanced",
		zap.String("original", query),
		zap.String("enhanced", out.EnhancedQuery),
		zap.Int("search_terms", len(out.SearchTerms)))
	return out
}

func queryPrompt(query string, structures []models.DocumentStructure) string {
	return fmt.Sprintf(`You are a search query enhancement assistant. Given a user's question and document structure information, provide:

1. An enhanced version of the query that is more suitable for document retrieval
2. Key concepts extracted from the query
3. Synonyms and related terms
4. Search terms for keyword matching
5. If document structure is provided, suggest which sections might be most relevant

User query: "%s"%s

Return your response as a JSON object:
{
  "enhancedQuery": "enhanced version of the query",
  "keyConcepts": ["concept1", "concept2", ...],
  "synonyms": ["synonym1", "synonym2", ...],
  "searchTerms": ["term1", "term2", ...],
  "suggestedSections": ["section title 1", "section title 2", ...]
}`, query, structureContext(structures))
}

// structureContext renders each document's table of contents, indented by level.
func structureContext(structures []models.DocumentStructure) string {
	if len(structures) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nDocument Structure Information:\n")
	for _, doc := range structures {
		fmt.Fprintf(&b, "\nDocument: %s\n", doc.FileName)
		if len(doc.TableOfContents) == 0 {
			b.WriteString("  (No table of contents available)\n")
			continue
		}
		b.WriteString("Table of Contents:\n")
		for _, item := range doc.TableOfContents {
			level := item.Level
			if level < 1 {
				level = 1
			}
			b.WriteString(strings.Repeat("  ", level-1))
			b.WriteString(item.Title)
			if item.PageNumber > 0 {
				fmt.Fprintf(&b, " (page %d)", item.PageNumber)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nBased on the document structure above, identify which sections or chapters are most likely to contain information relevant to the user's query. Use this information to guide your search term selection and query enhancement.")
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

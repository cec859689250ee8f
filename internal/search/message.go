package search

import (
	"fmt"

	"github.com/hyperjump/yomu/internal/models"
)

const ragMessageTemplate = `You are analyzing the following document(s). First, review the document overview to understand the overall structure and main topics. Then, examine the relevant excerpts to find specific information.

%s

---

User Question: %s

Instructions:
1. Use the document overview to understand the document's structure and main themes
2. Refer to the relevant excerpts for specific details
3. Provide a comprehensive answer that considers both the overall document context and the specific relevant sections
4. If the information is not in the documents, please say so clearly`

const fullTextMessageTemplate = `You are analyzing the following document(s). The complete document content is provided below.

%s

---

User Question: %s

Instructions:
1. Review the document overview to understand the overall structure and main topics
2. Use the full document content to answer the question comprehensively
3. Provide a detailed answer based on the complete document
4. If the information is not in the documents, please say so clearly`

// BuildEnhancedMessage wraps query with the retrieved context. With no context
// the query is returned as is.
func BuildEnhancedMessage(query string, rc *models.RAGContext) string {
	if rc.Empty() {
		return query
	}
	if rc.IsFullText {
		return fmt.Sprintf(fullTextMessageTemplate, rc.ContextText, query)
	}
	return fmt.Sprintf(ragMessageTemplate, rc.ContextText, query)
}

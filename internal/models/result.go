package models

// ScoredChunk is a chunk reference with its retrieval scores.
// Score is the final score; VectorScore and KeywordScore are the component
// signals when the result came out of hybrid fusion.
type ScoredChunk struct {
	FileID       string  `json:"file_id"`
	FileName     string  `json:"file_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	KeywordScore float64 `json:"keyword_score,omitempty"`
}

// Key identifies the chunk across result sets.
func (s ScoredChunk) Key() ChunkKey {
	return ChunkKey{FileID: s.FileID, ChunkIndex: s.ChunkIndex}
}

// ChunkKey is the (fileID, chunkIndex) identity of a chunk.
type ChunkKey struct {
	FileID     string
	ChunkIndex int
}

// RAGContext is the ranked retrieval result for one query. It is built per
// query and never persisted.
type RAGContext struct {
	Query          string        `json:"query"`
	RelevantChunks []ScoredChunk `json:"relevant_chunks"`
	ContextText    string        `json:"context_text"`
	IsFullText     bool          `json:"is_full_text,omitempty"`
	Mode           RetrievalMode `json:"mode,omitempty"`
	SearchTerms    []string      `json:"search_terms,omitempty"`
}

// Empty reports whether the context carries no text.
func (c *RAGContext) Empty() bool {
	return c == nil || c.ContextText == ""
}

package models

import "fmt"

// RetrievalMode selects how BuildRAGContext assembles context.
type RetrievalMode string

const (
	// ModeRAG retrieves the most relevant chunks.
	ModeRAG RetrievalMode = "rag"
	// ModeFullText returns every chunk of every file.
	ModeFullText RetrievalMode = "full-text"
	// ModeSmart uses full text for small document sets and RAG otherwise.
	ModeSmart RetrievalMode = "smart"
)

// Valid reports whether m is a known mode. The empty mode is valid and means the configured default.
func (m RetrievalMode) Valid() bool {
	switch m {
	case "", ModeRAG, ModeFullText, ModeSmart:
		return true
	}
	return false
}

// ContextRequest is the API input for building RAG context.
// When FileIDs is empty, every file of ThreadID is used.
type ContextRequest struct {
	Query           string        `json:"query"`
	ThreadID        string        `json:"thread_id,omitempty"`
	FileIDs         []string      `json:"file_ids,omitempty"`
	TopK            int           `json:"top_k,omitempty"`
	MinScore        *float64      `json:"min_score,omitempty"`
	UseEnhancement  *bool         `json:"use_enhancement,omitempty"`
	UseHybridSearch *bool         `json:"use_hybrid_search,omitempty"`
	Mode            RetrievalMode `json:"mode,omitempty"`
}

// Validate checks required fields and caps TopK.
func (r *ContextRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.ThreadID == "" && len(r.FileIDs) == 0 {
		return fmt.Errorf("thread_id or file_ids is required")
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	if r.TopK < 0 {
		r.TopK = 0
	}
	if r.TopK > 100 {
		r.TopK = 100
	}
	if r.MinScore != nil && (*r.MinScore < -1 || *r.MinScore > 1) {
		return fmt.Errorf("min_score must be within [-1, 1]")
	}
	return nil
}

// VectorSearchRequest is the API input for a raw similarity search.
// FileID takes precedence over ThreadID.
type VectorSearchRequest struct {
	Query    string   `json:"query"`
	ThreadID string   `json:"thread_id,omitempty"`
	FileID   string   `json:"file_id,omitempty"`
	TopK     int      `json:"top_k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// Validate checks required fields.
func (r *VectorSearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.ThreadID == "" && r.FileID == "" {
		return fmt.Errorf("thread_id or file_id is required")
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.TopK > 100 {
		r.TopK = 100
	}
	return nil
}

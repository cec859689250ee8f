// Package models defines core data structures for files, chunks, retrieval results and progress.
package models

import "time"

// Chunk strategies recorded in ChunkMetadata.Strategy.
const (
	StrategyText     = "text"
	StrategySemantic = "semantic"
)

// ChunkMetadata is the provenance a chunker attaches to a chunk.
// The text chunker only sets Strategy; the semantic chunker fills the rest.
type ChunkMetadata struct {
	Strategy     string  `json:"strategy,omitempty"`
	Tokens       int     `json:"tokens,omitempty"`
	ChineseRatio float64 `json:"chinese_ratio,omitempty"`
	IsLastChunk  bool    `json:"is_last_chunk,omitempty"`
}

// Chunk is a contiguous slice of a source document.
// StartChar and EndChar are character (rune) offsets into the source text
// and describe the untrimmed slice; Text is trimmed.
type Chunk struct {
	ID             string        `json:"id" db:"id"`
	FileID         string        `json:"file_id" db:"file_id"`
	ThreadID       string        `json:"thread_id" db:"thread_id"`
	Text           string        `json:"text" db:"text"`
	ChunkIndex     int           `json:"chunk_index" db:"chunk_index"`
	StartChar      int           `json:"start_char" db:"start_char"`
	EndChar        int           `json:"end_char" db:"end_char"`
	Embedding      []float32     `json:"-" db:"-"`
	EmbeddingModel string        `json:"embedding_model,omitempty" db:"embedding_model"`
	Metadata       ChunkMetadata `json:"metadata" db:"metadata"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Dimensions returns the length of the chunk's embedding.
func (c *Chunk) Dimensions() int {
	return len(c.Embedding)
}

// FileIndex is the file-level record for one ingested document.
// ChunkCount equals the number of stored chunks whose FileID is ID.
type FileIndex struct {
	ID              string            `json:"id" db:"id"`
	ThreadID        string            `json:"thread_id" db:"thread_id"`
	FileName        string            `json:"file_name" db:"file_name"`
	FileSize        int64             `json:"file_size" db:"file_size"`
	PageCount       int               `json:"page_count" db:"page_count"`
	ChunkCount      int               `json:"chunk_count" db:"chunk_count"`
	ProcessedAt     time.Time         `json:"processed_at" db:"processed_at"`
	ParserRequestID string            `json:"parser_request_id,omitempty" db:"parser_request_id"`
	EmbeddingModel  string            `json:"embedding_model,omitempty" db:"embedding_model"`
	FolderID        string            `json:"folder_id,omitempty" db:"folder_id"`
	ContentHash     string            `json:"content_hash,omitempty" db:"content_hash"`
	Metadata        *DocumentMetadata `json:"metadata,omitempty" db:"metadata"`
}

// FileUpdate is a partial update of a FileIndex. Nil fields are left untouched.
type FileUpdate struct {
	FileName *string           `json:"file_name,omitempty"`
	FolderID *string           `json:"folder_id,omitempty"`
	Metadata *DocumentMetadata `json:"metadata,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u FileUpdate) Empty() bool {
	return u.FileName == nil && u.FolderID == nil && u.Metadata == nil
}

// DocumentMetadata is optional enrichment generated after chunk storage.
type DocumentMetadata struct {
	Summary         string     `json:"summary,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	Topics          []string   `json:"topics,omitempty"`
	KeyPhrases      []string   `json:"key_phrases,omitempty"`
	TableOfContents []TOCEntry `json:"table_of_contents,omitempty"`
	Entities        *Entities  `json:"entities,omitempty"`
}

// TOCEntry is one table-of-contents heading.
type TOCEntry struct {
	Title      string `json:"title"`
	Level      int    `json:"level"`
	PageNumber int    `json:"page_number,omitempty"`
}

// Entities holds named entities found by pattern matching.
type Entities struct {
	Persons       []string `json:"persons,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Dates         []string `json:"dates,omitempty"`
	Emails        []string `json:"emails,omitempty"`
	URLs          []string `json:"urls,omitempty"`
	Currencies    []string `json:"currencies,omitempty"`
	Percentages   []string `json:"percentages,omitempty"`
}

// DocumentStructure is the outline of one file, used to bias query enhancement.
type DocumentStructure struct {
	FileName        string     `json:"file_name"`
	TableOfContents []TOCEntry `json:"table_of_contents,omitempty"`
}

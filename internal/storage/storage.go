// Package storage persists chunks with their embeddings and the file-level index.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/models"
)

// ErrNotFound is returned when a requested file does not exist.
var ErrNotFound = errors.New("not found")

// VectorStore defines chunk and file persistence operations.
//
// Chunks are upserted by ID <fileID>-chunk-<chunkIndex>. Referential integrity
// is not checked on insert but deletes cascade from a file to its chunks.
type VectorStore interface {
	// Chunk operations
	StoreChunks(ctx context.Context, fileID, threadID string, chunks []models.Chunk) error
	GetChunksByFileID(ctx context.Context, fileID string) ([]models.Chunk, error)
	GetChunksByThreadID(ctx context.Context, threadID string) ([]models.Chunk, error)

	// File operations
	StoreFileMetadata(ctx context.Context, file *models.FileIndex) error
	GetFileMetadata(ctx context.Context, fileID string) (*models.FileIndex, error)
	GetFilesByThreadID(ctx context.Context, threadID string) ([]*models.FileIndex, error)
	UpdateFileMetadata(ctx context.Context, fileID string, update models.FileUpdate) (*models.FileIndex, error)
	DeleteFile(ctx context.Context, fileID string) error

	// DeleteThreadData removes every file and chunk of threadID and returns the
	// number of files removed.
	DeleteThreadData(ctx context.Context, threadID string) (int, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats summarizes store contents.
type Stats struct {
	Files   int64 `json:"files"`
	Chunks  int64 `json:"chunks"`
	Threads int64 `json:"threads"`
}

func fileNotFound(fileID string) error {
	return fmt.Errorf("file %s %w", fileID, ErrNotFound)
}

// prepareChunks stamps identity fields onto chunks before they are written.
func prepareChunks(fileID, threadID string, chunks []models.Chunk) []models.Chunk {
	now := time.Now()
	out := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.ID = fileid.ChunkID(fileID, c.ChunkIndex)
		c.FileID = fileID
		c.ThreadID = threadID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		out[i] = c
	}
	return out
}

func applyUpdate(f *models.FileIndex, u models.FileUpdate) {
	if u.FileName != nil {
		f.FileName = *u.FileName
	}
	if u.FolderID != nil {
		f.FolderID = *u.FolderID
	}
	if u.Metadata != nil {
		md := *u.Metadata
		f.Metadata = &md
	}
}

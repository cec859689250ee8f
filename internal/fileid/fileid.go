// Package fileid derives file and chunk identifiers.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	prefix  = "file-"
	hashLen = 32
)

// FromContent returns a stable ID for content ingested into threadID.
// The same bytes in the same thread always yield the same ID, so re-ingesting
// a document overwrites it instead of duplicating it.
func FromContent(threadID string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(threadID))
	h.Write([]byte{0})
	h.Write(content)
	return prefix + hex.EncodeToString(h.Sum(nil))[:hashLen]
}

// FromPath returns a stable ID for a watched file. Same thread and cleaned path
// always yield the same ID, which lets a removal be mapped back to its FileIndex.
func FromPath(threadID, absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(threadID + "\x00" + normalized))
	return prefix + hex.EncodeToString(hash[:])[:hashLen]
}

// ContentHash returns the hex SHA-256 of content, used to detect unchanged re-uploads.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// New returns a random file ID.
func New() string {
	return prefix + uuid.NewString()
}

// ChunkID returns the storage ID of the chunk at index within fileID.
func ChunkID(fileID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", fileID, index)
}

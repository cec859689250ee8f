package storage

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/yomu/internal/models"
)

// MemoryStore is an in-memory VectorStore for tests and small deployments.
// Save and Load persist it as a binary snapshot.
type MemoryStore struct {
	mu     sync.RWMutex
	files  map[string]*models.FileIndex
	chunks map[string]models.Chunk
	// insertion sequence numbers; upserts keep the original value
	fileSeq  map[string]uint64
	chunkSeq map[string]uint64
	next     uint64
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]*models.FileIndex),
		chunks:   make(map[string]models.Chunk),
		fileSeq:  make(map[string]uint64),
		chunkSeq: make(map[string]uint64),
	}
}

func (m *MemoryStore) seq(table map[string]uint64, id string) {
	if _, ok := table[id]; ok {
		return
	}
	m.next++
	table[id] = m.next
}

// StoreChunks upserts chunks. Embeddings are copied.
func (m *MemoryStore) StoreChunks(ctx context.Context, fileID, threadID string, chunks []models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range prepareChunks(fileID, threadID, chunks) {
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.seq(m.chunkSeq, c.ID)
		m.chunks[c.ID] = c
	}
	return nil
}

// GetChunksByFileID returns the file's chunks ordered by chunk index.
func (m *MemoryStore) GetChunksByFileID(ctx context.Context, fileID string) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Chunk
	for _, c := range m.chunks {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// GetChunksByThreadID returns the thread's chunks grouped by file in insertion
// order, each file's chunks ordered by chunk index.
func (m *MemoryStore) GetChunksByThreadID(ctx context.Context, threadID string) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Chunk
	firstSeq := make(map[string]uint64)
	for id, c := range m.chunks {
		if c.ThreadID != threadID {
			continue
		}
		out = append(out, c)
		if s, ok := firstSeq[c.FileID]; !ok || m.chunkSeq[id] < s {
			firstSeq[c.FileID] = m.chunkSeq[id]
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := firstSeq[out[i].FileID], firstSeq[out[j].FileID]
		if a != b {
			return a < b
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

// StoreFileMetadata upserts a copy of file.
func (m *MemoryStore) StoreFileMetadata(ctx context.Context, file *models.FileIndex) error {
	if file == nil || file.ID == "" {
		return errors.New("file id is required")
	}
	if file.ProcessedAt.IsZero() {
		file.ProcessedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *file
	m.seq(m.fileSeq, cp.ID)
	m.files[cp.ID] = &cp
	return nil
}

// GetFileMetadata returns a copy of the file record or ErrNotFound.
func (m *MemoryStore) GetFileMetadata(ctx context.Context, fileID string) (*models.FileIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil, fileNotFound(fileID)
	}
	cp := *f
	return &cp, nil
}

// GetFilesByThreadID returns the thread's files in insertion order.
func (m *MemoryStore) GetFilesByThreadID(ctx context.Context, threadID string) ([]*models.FileIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.FileIndex
	for _, f := range m.files {
		if f.ThreadID == threadID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.fileSeq[out[i].ID] < m.fileSeq[out[j].ID] })
	return out, nil
}

// UpdateFileMetadata applies update to the stored record and returns the result.
func (m *MemoryStore) UpdateFileMetadata(ctx context.Context, fileID string, update models.FileUpdate) (*models.FileIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil, fileNotFound(fileID)
	}
	applyUpdate(f, update)
	cp := *f
	return &cp, nil
}

// DeleteFile removes the file record and all of its chunks.
func (m *MemoryStore) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	if _, ok := m.files[fileID]; ok {
		delete(m.files, fileID)
		delete(m.fileSeq, fileID)
		found = true
	}
	for id, c := range m.chunks {
		if c.FileID == fileID {
			delete(m.chunks, id)
			delete(m.chunkSeq, id)
			found = true
		}
	}
	if !found {
		return fileNotFound(fileID)
	}
	return nil
}

// DeleteThreadData removes all files and chunks belonging to threadID.
func (m *MemoryStore) DeleteThreadData(ctx context.Context, threadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, f := range m.files {
		if f.ThreadID == threadID {
			delete(m.files, id)
			delete(m.fileSeq, id)
			n++
		}
	}
	for id, c := range m.chunks {
		if c.ThreadID == threadID {
			delete(m.chunks, id)
			delete(m.chunkSeq, id)
		}
	}
	return n, nil
}

// Stats counts files, chunks and distinct threads.
func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	threads := make(map[string]struct{})
	for _, f := range m.files {
		threads[f.ThreadID] = struct{}{}
	}
	for _, c := range m.chunks {
		threads[c.ThreadID] = struct{}{}
	}
	return Stats{
		Files:   int64(len(m.files)),
		Chunks:  int64(len(m.chunks)),
		Threads: int64(len(threads)),
	}, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

const (
	snapshotMagic   = "YOMU"
	snapshotVersion = uint32(1)
)

// Save writes a snapshot to path. The directory is created if needed.
// Format: magic (4), version (4), file count (4), then per file a length-prefixed
// JSON record; chunk count (4), then per chunk a length-prefixed JSON record,
// dimension (4) and the embedding as little-endian float32 values.
// Records are written in insertion order.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeSnapshot(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryStore) writeSnapshot(w io.Writer) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, snapshotVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	fileIDs := sortedBySeq(m.fileSeq)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fileIDs))); err != nil {
		return fmt.Errorf("write file count: %w", err)
	}
	for _, id := range fileIDs {
		if err := writeRecord(w, m.files[id]); err != nil {
			return fmt.Errorf("write file %s: %w", id, err)
		}
	}

	chunkIDs := sortedBySeq(m.chunkSeq)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunkIDs))); err != nil {
		return fmt.Errorf("write chunk count: %w", err)
	}
	for _, id := range chunkIDs {
		c := m.chunks[id]
		if err := writeRecord(w, c); err != nil {
			return fmt.Errorf("write chunk %s: %w", id, err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Embedding))); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if _, err := w.Write(encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads a snapshot from path and replaces the in-memory contents.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	loaded := NewMemoryStore()
	if err := loaded.readSnapshot(bufio.NewReader(f)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files, m.chunks = loaded.files, loaded.chunks
	m.fileSeq, m.chunkSeq, m.next = loaded.fileSeq, loaded.chunkSeq, loaded.next
	return nil
}

func (m *MemoryStore) readSnapshot(r io.Reader) error {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("not a snapshot file")
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}

	var nFiles uint32
	if err := binary.Read(r, binary.LittleEndian, &nFiles); err != nil {
		return fmt.Errorf("read file count: %w", err)
	}
	for i := uint32(0); i < nFiles; i++ {
		var f models.FileIndex
		if err := readRecord(r, &f); err != nil {
			return fmt.Errorf("read file %d: %w", i, err)
		}
		m.seq(m.fileSeq, f.ID)
		m.files[f.ID] = &f
	}

	var nChunks uint32
	if err := binary.Read(r, binary.LittleEndian, &nChunks); err != nil {
		return fmt.Errorf("read chunk count: %w", err)
	}
	for i := uint32(0); i < nChunks; i++ {
		var c models.Chunk
		if err := readRecord(r, &c); err != nil {
			return fmt.Errorf("read chunk %d: %w", i, err)
		}
		var dims uint32
		if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
			return fmt.Errorf("read dimensions: %w", err)
		}
		buf := make([]byte, int(dims)*4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vec, err := decodeVector(buf, int(dims))
		if err != nil {
			return err
		}
		c.Embedding = vec
		m.seq(m.chunkSeq, c.ID)
		m.chunks[c.ID] = c
	}
	return nil
}

func writeRecord(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func readRecord(r io.Reader, v any) error {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func sortedBySeq(seq map[string]uint64) []string {
	ids := make([]string, 0, len(seq))
	for id := range seq {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return seq[ids[i]] < seq[ids[j]] })
	return ids
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

func TestMemoryStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.StoreChunks(ctx, "f2", "t1", testChunks(2, "m")); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreChunks(ctx, "f1", "t1", testChunks(1, "m")); err != nil {
		t.Fatal(err)
	}
	md := &models.DocumentMetadata{Summary: "s", Keywords: []string{"k"}}
	if err := store.StoreFileMetadata(ctx, &models.FileIndex{ID: "f2", ThreadID: "t1", FileName: "b", Metadata: md}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "snap", "store.bin")
	if err := store.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewMemoryStore()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	chunks, _ := loaded.GetChunksByThreadID(ctx, "t1")
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].FileID != "f2" || chunks[2].FileID != "f1" {
		t.Errorf("insertion order lost: %s, %s", chunks[0].ID, chunks[2].ID)
	}
	if len(chunks[1].Embedding) != 3 || chunks[1].Embedding[0] != 1 {
		t.Errorf("embedding lost: %v", chunks[1].Embedding)
	}
	f, err := loaded.GetFileMetadata(ctx, "f2")
	if err != nil {
		t.Fatal(err)
	}
	if f.Metadata == nil || f.Metadata.Summary != "s" {
		t.Errorf("metadata lost: %+v", f.Metadata)
	}

	// new inserts after a load still sort after the loaded records
	if err := loaded.StoreChunks(ctx, "f3", "t1", testChunks(1, "m")); err != nil {
		t.Fatal(err)
	}
	chunks, _ = loaded.GetChunksByThreadID(ctx, "t1")
	if chunks[len(chunks)-1].FileID != "f3" {
		t.Errorf("expected f3 last, got %s", chunks[len(chunks)-1].ID)
	}
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Load(filepath.Join(t.TempDir(), "missing.bin")); err != nil {
		t.Errorf("missing snapshot should not error: %v", err)
	}
}

func TestMemoryStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("nope, not a snapshot"), 0644); err != nil {
		t.Fatal(err)
	}
	store := NewMemoryStore()
	if err := store.Load(path); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	got, err := decodeVector(encodeVector(v), len(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: got %v want %v", i, got[i], v[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}, 0); err == nil {
		t.Error("expected error for truncated blob")
	}
	if _, err := decodeVector(encodeVector(v), 3); err == nil {
		t.Error("expected error for dimension mismatch")
	}
}

package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

const testThread = "watched"

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) paths(removed bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Removed == removed && ev.Err == nil {
			out = append(out, ev.Path)
		}
	}
	return out
}

// countingIngester counts IngestFile calls made on the wrapped pipeline.
type countingIngester struct {
	*indexer.Pipeline
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingIngester) IngestFile(ctx context.Context, req indexer.IngestRequest, fn models.ProgressFunc) (*models.FileIndex, error) {
	c.mu.Lock()
	c.calls[req.Path]++
	c.mu.Unlock()
	return c.Pipeline.IngestFile(ctx, req, fn)
}

func (c *countingIngester) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

func newIngester() (*countingIngester, storage.VectorStore) {
	store := storage.NewMemoryStore()
	gen := embedding.NewGenerator(embedding.NewChain(nil, embedding.NewMockProvider(8)))
	p := indexer.NewPipeline(store, nil, gen)
	return &countingIngester{Pipeline: p, calls: map[string]int{}}, store
}

func startWatcher(t *testing.T, roots []string, exts []string, ing Ingester, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(roots, exts, true, testThread, ing,
		WithDebounce(50*time.Millisecond),
		WithEventHandler(rec.handle))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	ing, _ := newIngester()
	w := startWatcher(t, nil, nil, ing, &recorder{})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_StopRightAfterStart(t *testing.T) {
	ing, _ := newIngester()
	for i := 0; i < 50; i++ {
		w := NewWatcher([]string{t.TempDir()}, nil, true, testThread, ing)
		ctx, cancel := context.WithCancel(context.Background())
		if err := w.Start(ctx); err != nil {
			cancel()
			t.Fatal(err)
		}
		if i%2 == 0 {
			w.Stop()
		} else {
			cancel()
		}
		w.Stop()
		cancel()
	}
	// Let any scheduled run goroutines observe the closed watcher.
	time.Sleep(50 * time.Millisecond)
}

func TestWatcher_AddDirectoryBeforeStart(t *testing.T) {
	ing, _ := newIngester()
	w := NewWatcher(nil, nil, true, testThread, ing)
	if err := w.AddDirectory(t.TempDir(), false); err == nil {
		t.Error("expected error before Start")
	}
}

func TestWatcher_IngestsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	ing, store := newIngester()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, ing, rec)

	path := filepath.Join(dir, "note.txt")
	if err := writeFile(path, "hello watcher"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "skip.md"), "not watched"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "note.txt ingestion", func() bool { return hasSuffix(rec.paths(false), "note.txt") })

	fi, err := store.GetFileMetadata(context.Background(), fileid.FromPath(testThread, path))
	if err != nil {
		t.Fatal(err)
	}
	if fi.ThreadID != testThread || fi.FileName != "note.txt" || fi.ChunkCount != 1 {
		t.Errorf("unexpected file record: %+v", fi)
	}
	if hasSuffix(rec.paths(false), "skip.md") {
		t.Error("skip.md should not be ingested")
	}
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	ing, _ := newIngester()
	rec := &recorder{}
	startWatcher(t, []string{dir}, nil, ing, rec)

	path := filepath.Join(dir, "busy.txt")
	for i := 0; i < 5; i++ {
		if err := writeFile(path, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "busy.txt ingestion", func() bool { return hasSuffix(rec.paths(false), "busy.txt") })
	time.Sleep(150 * time.Millisecond)
	if n := ing.count(path); n != 1 {
		t.Errorf("IngestFile called %d times, want 1", n)
	}
}

func TestWatcher_RemovedFileIsDeleted(t *testing.T) {
	dir := t.TempDir()
	ing, store := newIngester()
	rec := &recorder{}
	startWatcher(t, []string{dir}, nil, ing, rec)

	path := filepath.Join(dir, "gone.txt")
	if err := writeFile(path, "short lived"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "gone.txt ingestion", func() bool { return hasSuffix(rec.paths(false), "gone.txt") })

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "gone.txt removal", func() bool { return hasSuffix(rec.paths(true), "gone.txt") })

	_, err := store.GetFileMetadata(context.Background(), fileid.FromPath(testThread, path))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	ing, store := newIngester()
	rec := &recorder{}
	w := startWatcher(t, []string{dir}, nil, ing, rec)

	w.SyncExistingFiles()

	ingested := rec.paths(false)
	if len(ingested) != 1 || !strings.HasSuffix(ingested[0], "a.txt") {
		t.Fatalf("expected one ingested file a.txt, got %v", ingested)
	}
	files, err := store.GetFilesByThreadID(context.Background(), testThread)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 stored file, got %d", len(files))
	}

	// a second sync finds the file unchanged
	w.SyncExistingFiles()
	files, _ = store.GetFilesByThreadID(context.Background(), testThread)
	if len(files) != 1 {
		t.Errorf("expected 1 stored file after resync, got %d", len(files))
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	ing, _ := newIngester()
	startWatcher(t, []string{root}, nil, ing, &recorder{})

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewDirectoryIsIngested(t *testing.T) {
	dir := t.TempDir()
	ing, _ := newIngester()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".md"}, ing, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "level1", "doc.md"), "# Doc"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "ignore.xyz"), "skip"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "nested documents", func() bool {
		p := rec.paths(false)
		return hasSuffix(p, "deep.txt") && hasSuffix(p, "doc.md")
	})
	if hasSuffix(rec.paths(false), "ignore.xyz") {
		t.Error("ignore.xyz should not be ingested")
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_FileID(t *testing.T) {
	ing, _ := newIngester()
	w := NewWatcher(nil, nil, true, "t9", ing)
	if got, want := w.FileID("/docs/a.pdf"), fileid.FromPath("t9", "/docs/a.pdf"); got != want {
		t.Errorf("FileID = %s, want %s", got, want)
	}
	if w.ThreadID() != "t9" {
		t.Errorf("ThreadID = %s", w.ThreadID())
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

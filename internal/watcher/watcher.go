// Package watcher ingests documents dropped into watched directories and
// removes them from the store when they disappear.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester is the part of the ingestion pipeline the watcher drives.
type Ingester interface {
	IngestFile(ctx context.Context, req indexer.IngestRequest, onProgress models.ProgressFunc) (*models.FileIndex, error)
	IngestDirectory(ctx context.Context, dir, threadID string, recursive bool, allowedExts []string, onFile func(indexer.DirectoryResult)) (int, error)
	DeleteFile(ctx context.Context, fileID string) error
	Accepts(path string, allowedExts []string) bool
}

// Event is reported after the watcher acted on a path. File is nil for removals.
type Event struct {
	Path    string
	Removed bool
	File    *models.FileIndex
	Err     error
}

// Watcher watches directories and ingests matching documents into one thread.
type Watcher struct {
	roots       []string
	extensions  []string
	recursive   bool
	threadID    string
	ingester    Ingester
	onEvent     func(Event)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	ctx         context.Context
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	rootPaths   map[string][]string // root -> list of watched paths (dirs we added)
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a path must be quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithEventHandler receives every ingestion and removal the watcher performs.
func WithEventHandler(fn func(Event)) WatcherOption {
	return func(w *Watcher) { w.onEvent = fn }
}

// NewWatcher creates a watcher over roots that ingests into threadID.
// extensions narrows the types the ingester accepts (empty = all it supports).
func NewWatcher(roots []string, extensions []string, recursive bool, threadID string, ingester Ingester, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:       append([]string(nil), roots...),
		extensions:  extensions,
		recursive:   recursive,
		threadID:    threadID,
		ingester:    ingester,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		rootPaths:   make(map[string][]string),
		done:        make(chan struct{}),
		ctx:         context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
// Missing roots are created.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.ctx = ctx
	w.started = true
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive),
		zap.String("thread_id", w.threadID))
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err == nil {
			err = w.addRootLocked(abs)
		}
		if err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
		w.roots[i] = filepath.Clean(abs)
	}
	w.mu.Unlock()
	go w.run(ctx, watcher)
	return nil
}

// run consumes fw directly; Stop may clear w.watcher before run is scheduled.
func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if info.Mode().IsRegular() && w.accepts(path) {
			w.debounceIngest(path)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.accepts(path) {
			w.remove(path)
		}
	}
}

// handleNewDirectory watches a directory that appeared under a root and
// ingests the documents already inside it.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	recursive := w.recursive
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}
	w.logger.Debug("watcher handling new directory", zap.String("path", dirPath))

	if recursive {
		_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if err := watcher.Add(path); err != nil {
					w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := watcher.Add(dirPath); err != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dirPath), zap.Error(err))
	}

	w.syncDirectory(dirPath)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) accepts(path string) bool {
	return w.ingester.Accepts(path, w.extensions)
}

func (w *Watcher) debounceIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// FileID returns the ID a watched file at path is stored under.
func (w *Watcher) FileID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return fileid.FromPath(w.threadID, abs)
}

func (w *Watcher) ingest(path string) {
	w.logger.Debug("watcher ingesting file", zap.String("path", path))
	fi, err := w.ingester.IngestFile(w.ctx, indexer.IngestRequest{
		Path:          path,
		ThreadID:      w.threadID,
		FileID:        w.FileID(path),
		SkipUnchanged: true,
	}, nil)
	if err != nil {
		w.logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
	}
	w.emit(Event{Path: path, File: fi, Err: err})
}

func (w *Watcher) remove(path string) {
	err := w.ingester.DeleteFile(w.ctx, w.FileID(path))
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	if err != nil {
		w.logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
	} else {
		w.logger.Debug("watched file removed", zap.String("path", path))
	}
	w.emit(Event{Path: path, Removed: true, Err: err})
}

func (w *Watcher) emit(ev Event) {
	if w.onEvent != nil {
		w.onEvent(ev)
	}
}

// AddDirectory adds a root directory to watch and optionally ingests the
// documents already in it.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return errors.New("watcher not started")
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == abs {
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.syncDirectory(abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

func (w *Watcher) syncDirectory(root string) {
	w.mu.Lock()
	ctx := w.ctx
	recursive := w.recursive
	w.mu.Unlock()
	w.logger.Debug("watcher syncing directory", zap.String("root", root))
	n, err := w.ingester.IngestDirectory(ctx, root, w.threadID, recursive, w.extensions, func(r indexer.DirectoryResult) {
		w.emit(Event{Path: r.Path, File: r.File, Err: r.Err})
	})
	if err != nil {
		w.logger.Warn("watcher sync failed", zap.String("root", root), zap.Error(err))
		return
	}
	w.logger.Debug("watcher sync complete", zap.String("root", root), zap.Int("files", n))
}

// RemoveDirectory stops watching the given root. Ingested documents are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	idx := -1
	for i, r := range w.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range w.rootPaths[abs] {
		_ = w.watcher.Remove(p)
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	w.logger.Debug("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the current watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// ThreadID returns the thread watched documents are ingested into.
func (w *Watcher) ThreadID() string {
	return w.threadID
}

// SyncExistingFiles ingests the documents already present in each root.
// Call it after Start; unchanged files are skipped.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.syncDirectory(root)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

package indexer

import (
	"sync"

	"github.com/hyperjump/yomu/internal/models"
)

// ProgressTracker forwards progress events and keeps them monotonic: a report
// below the highest progress seen so far is raised to it.
type ProgressTracker struct {
	mu   sync.Mutex
	fn   models.ProgressFunc
	last int
}

// NewProgressTracker wraps fn, which may be nil.
func NewProgressTracker(fn models.ProgressFunc) *ProgressTracker {
	return &ProgressTracker{fn: fn}
}

// Report emits one event. progress is clamped to [0, 100].
func (t *ProgressTracker) Report(stage models.Stage, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	progress = max(0, min(progress, 100))
	if progress < t.last {
		progress = t.last
	}
	t.last = progress
	if t.fn != nil {
		t.fn(models.ProgressEvent{Stage: stage, Progress: progress, Message: message})
	}
}

// Last returns the highest progress reported.
func (t *ProgressTracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

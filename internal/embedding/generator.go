package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	DefaultBatchSize        = 20
	DefaultProgressInterval = 200 * time.Millisecond
	DefaultConcurrency      = 2
)

// ProgressFunc receives (completed, total) text counts.
type ProgressFunc func(completed, total int)

// Generator embeds texts through a provider chain. It is an explicit
// resource: create it with NewGenerator and release it with Close.
type Generator struct {
	chain            *Chain
	limiter          *rate.Limiter
	cache            *Cache
	batchSize        int
	concurrency      int
	progressInterval time.Duration
	logger           *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithBatchSize sets the default batch size.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithRateLimit limits provider calls to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) GeneratorOption {
	return func(g *Generator) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache caches single-text embeddings (query vectors).
func WithCache(c *Cache) GeneratorOption {
	return func(g *Generator) { g.cache = c }
}

// WithConcurrency sets how many batches may be in flight at once.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithProgressInterval sets the minimum time between progress callbacks.
func WithProgressInterval(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.progressInterval = d }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator over chain.
func NewGenerator(chain *Chain, opts ...GeneratorOption) *Generator {
	g := &Generator{
		chain:            chain,
		batchSize:        DefaultBatchSize,
		concurrency:      DefaultConcurrency,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = utils.OrNop(g.logger)
	return g
}

// Model returns the model vectors are expected to come from.
func (g *Generator) Model() string {
	return g.chain.Model()
}

// Close releases the providers.
func (g *Generator) Close() error {
	return g.chain.Close()
}

// GenerateEmbedding embeds a single text, consulting the cache first.
func (g *Generator) GenerateEmbedding(ctx context.Context, text string) (Vector, error) {
	model := g.Model()
	if v, ok := g.cache.Get(model, text); ok {
		return Vector{Values: v, Model: model}, nil
	}
	b, err := g.embed(ctx, []string{text})
	if err != nil {
		return Vector{}, fmt.Errorf("%w: %w", ErrAPIFailed, err)
	}
	g.cache.Set(b.Model, text, b.Vectors[0])
	return Vector{Values: b.Vectors[0], Model: b.Model}, nil
}

// GenerateEmbeddings embeds texts in batches, preserving input order. Any
// batch failure fails the whole call. All vectors must come from the same
// model, otherwise ErrMixedModels is returned. onProgress may be nil; it is
// called at most once per progress interval plus a final (total, total).
func (g *Generator) GenerateEmbeddings(ctx context.Context, texts []string, batchSize int, onProgress ProgressFunc) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = g.batchSize
	}
	total := len(texts)
	nBatches := (total + batchSize - 1) / batchSize
	batches := make([]*Batch, nBatches)
	report := newThrottledProgress(onProgress, total, g.progressInterval)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := 0; i < nBatches; i++ {
		i := i
		start := i * batchSize
		end := min(start+batchSize, total)
		eg.Go(func() error {
			b, err := g.embed(egCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, nBatches, err)
			}
			batches[i] = b
			report.add(end - start)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIFailed, err)
	}

	model := batches[0].Model
	out := make([]Vector, 0, total)
	for _, b := range batches {
		if b.Model != model {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedModels, model, b.Model)
		}
		for _, v := range b.Vectors {
			out = append(out, Vector{Values: v, Model: b.Model})
		}
	}
	report.finish()
	g.logger.Debug("embeddings generated",
		zap.Int("texts", total),
		zap.Int("batches", nBatches),
		zap.String("model", model))
	return out, nil
}

func (g *Generator) embed(ctx context.Context, texts []string) (*Batch, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return g.chain.Embed(ctx, texts)
}

// throttledProgress forwards progress at most once per interval. The final
// (total, total) call is always delivered, exactly once.
type throttledProgress struct {
	mu       sync.Mutex
	fn       ProgressFunc
	total    int
	done     int
	interval time.Duration
	last     time.Time
	finished bool
}

func newThrottledProgress(fn ProgressFunc, total int, interval time.Duration) *throttledProgress {
	return &throttledProgress{fn: fn, total: total, interval: interval}
}

func (p *throttledProgress) add(n int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	if p.done >= p.total {
		return
	}
	now := time.Now()
	if now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.fn(p.done, p.total)
}

func (p *throttledProgress) finish() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.fn(p.total, p.total)
}

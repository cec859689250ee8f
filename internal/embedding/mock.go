package embedding

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/hyperjump/yomu/pkg/utils"
)

// MockProvider is a deterministic provider for tests and offline use. The
// same text always gets the same unit-length vector.
type MockProvider struct {
	dimensions int
	model      string
	// Err, when set, is returned by every EmbedBatch call.
	Err   error
	calls atomic.Int64
}

// NewMockProvider returns a provider producing vectors of the given dimensions.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockProvider{dimensions: dimensions, model: "mock-embedding"}
}

// WithModel sets the model name reported by the provider.
func (m *MockProvider) WithModel(model string) *MockProvider {
	m.model = model
	return m
}

func (m *MockProvider) Name() string    { return ProviderMock }
func (m *MockProvider) Model() string   { return m.model }
func (m *MockProvider) Dimensions() int { return m.dimensions }
func (m *MockProvider) Close() error    { return nil }

// Calls returns how many times EmbedBatch was called.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

// EmbedBatch returns one hash-derived vector per text.
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *MockProvider) vector(text string) []float32 {
	h := HashString(text)
	v := make([]float32, m.dimensions)
	for i := range v {
		v[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(v)
	return v
}

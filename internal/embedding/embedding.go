// Package embedding converts text into dense vectors.
//
// Providers (remote APIs, a local ONNX model, a deterministic mock) are tried
// in order by a Chain. A Generator owns the chain and adds batching, rate
// limiting, retries, progress reporting and model tagging on top of it.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when a provider lacks a credential or model.
	ErrNotConfigured = errors.New("embedding provider not configured")
	// ErrMixedModels is returned when one document's vectors come from different models.
	ErrMixedModels = errors.New("embeddings produced by different models")
	// ErrNoProviders is returned by a Chain with no providers.
	ErrNoProviders = errors.New("no embedding providers")
	// ErrBadResponse is returned when a provider answers with the wrong number of vectors.
	ErrBadResponse = errors.New("unexpected embedding response")
	// ErrAPIFailed wraps every failure the Generator surfaces.
	ErrAPIFailed = errors.New("embedding API failed")
)

// Provider embeds a batch of texts, returning one vector per input in input order.
type Provider interface {
	Name() string
	Model() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// Vector is an embedding tagged with the model that produced it.
type Vector struct {
	Values []float32 `json:"values"`
	Model  string    `json:"model"`
}

// Dimensions returns len(v.Values).
func (v Vector) Dimensions() int {
	return len(v.Values)
}

// Batch is the result of one Chain call.
type Batch struct {
	Vectors  [][]float32
	Model    string
	Provider string
}

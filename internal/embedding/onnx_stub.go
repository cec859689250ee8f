//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// ONNXProvider stub type when built without CGO (see onnx.go for the real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO.
func NewONNXProvider(_ ProviderConfig) (*ONNXProvider, error) {
	return nil, fmt.Errorf("%w: onnx provider requires CGO; build with CGO_ENABLED=1 and onnxruntime", ErrNotConfigured)
}

func (p *ONNXProvider) Name() string  { return ProviderONNX }
func (p *ONNXProvider) Model() string { return "" }
func (p *ONNXProvider) Close() error  { return nil }

func (p *ONNXProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrNotConfigured
}

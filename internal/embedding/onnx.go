//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/yomu/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXProvider runs a local sentence-embedding model with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXProvider struct {
	session    *ort.AdvancedSession
	model      string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Tensors are allocated once; Run reads inputs from and writes outputs to them.
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXProvider loads the model at cfg.ModelPath.
func NewONNXProvider(cfg ProviderConfig) (*ONNXProvider, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: onnx model_path is required", ErrNotConfigured)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Model == "" {
		cfg.Model = strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	p := &ONNXProvider{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxTokens:  cfg.MaxTokens,
		tokenizer:  &SimpleTokenizer{},
	}
	shape := ort.NewShape(1, int64(cfg.MaxTokens))
	var err error
	if p.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if p.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if p.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if p.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimensions))); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	p.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{p.inputIDs, p.attentionMask, p.tokenTypeIDs},
		[]ort.ArbitraryTensor{p.output},
		nil,
	)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return p, nil
}

func (p *ONNXProvider) Name() string    { return ProviderONNX }
func (p *ONNXProvider) Model() string   { return p.model }
func (p *ONNXProvider) Dimensions() int { return p.dimensions }

// EmbedBatch runs inference once per text. The session is not safe for
// concurrent use, so calls are serialized.
func (p *ONNXProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, fmt.Errorf("onnx provider is closed")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, mask, types := p.tokenizer.Tokenize(text, p.maxTokens)
		copy(p.inputIDs.GetData(), ids)
		copy(p.attentionMask.GetData(), mask)
		copy(p.tokenTypeIDs.GetData(), types)
		if err := p.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		vec := make([]float32, p.dimensions)
		copy(vec, p.output.GetData())
		utils.NormalizeL2(vec)
		out[i] = vec
	}
	return out, nil
}

// Close destroys the session and tensors.
func (p *ONNXProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputIDs != nil {
		_ = p.inputIDs.Destroy()
	}
	if p.attentionMask != nil {
		_ = p.attentionMask.Destroy()
	}
	if p.tokenTypeIDs != nil {
		_ = p.tokenTypeIDs.Destroy()
	}
	if p.output != nil {
		_ = p.output.Destroy()
	}
	p.inputIDs, p.attentionMask, p.tokenTypeIDs, p.output = nil, nil, nil, nil
	return err
}

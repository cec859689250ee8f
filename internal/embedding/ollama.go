package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
)

// OllamaProvider calls a local Ollama server. Ollama has no batch endpoint,
// so texts are embedded one request at a time.
type OllamaProvider struct {
	client  *http.Client
	baseURL string
	model   string
	retry   utils.RetryConfig
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(cfg ProviderConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		retry:   cfg.retryConfig(),
	}
}

func (p *OllamaProvider) Name() string  { return ProviderOllama }
func (p *OllamaProvider) Model() string { return p.model }
func (p *OllamaProvider) Close() error  { return nil }

// EmbedBatch embeds each text in turn.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		body := ollamaEmbedRequest{Model: p.model, Prompt: t}
		resp, err := utils.Retry(ctx, p.retry, func() (*ollamaEmbedResponse, error) {
			var r ollamaEmbedResponse
			if err := utils.PostJSON(ctx, p.client, "ollama", p.baseURL+"/api/embeddings", nil, body, &r); err != nil {
				return nil, err
			}
			return &r, nil
		})
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = toFloat32(resp.Embedding)
	}
	return out, nil
}

package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	DefaultTimeout       = 30 * time.Second
)

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	retry      utils.RetryConfig
}

type openAIEmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIProvider creates an OpenAI embedding provider. It returns
// ErrNotConfigured when cfg.APIKey is empty.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAIProvider{
		client:     &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		retry:      cfg.retryConfig(),
	}, nil
}

func (p *OpenAIProvider) Name() string  { return ProviderOpenAI }
func (p *OpenAIProvider) Model() string { return p.model }
func (p *OpenAIProvider) Close() error  { return nil }

// EmbedBatch embeds texts in one request, ordering results by their index field.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := openAIEmbeddingRequest{Input: texts, Model: p.model, Dimensions: p.dimensions}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	resp, err := utils.Retry(ctx, p.retry, func() (*openAIEmbeddingResponse, error) {
		var out openAIEmbeddingResponse
		if err := utils.PostJSON(ctx, p.client, "openai", p.baseURL+"/embeddings", headers, body, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrBadResponse, len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = toFloat32(d.Embedding)
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "text-embedding-004"
)

// GeminiProvider calls the Google Generative Language batchEmbedContents API.
type GeminiProvider struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	retry      utils.RetryConfig
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// NewGeminiProvider creates a Gemini embedding provider. It returns
// ErrNotConfigured when cfg.APIKey is empty.
func NewGeminiProvider(cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &GeminiProvider{
		client:     &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      strings.TrimPrefix(cfg.Model, "models/"),
		dimensions: cfg.Dimensions,
		retry:      cfg.retryConfig(),
	}, nil
}

func (p *GeminiProvider) Name() string  { return ProviderGemini }
func (p *GeminiProvider) Model() string { return p.model }
func (p *GeminiProvider) Close() error  { return nil }

// EmbedBatch embeds texts with a single batchEmbedContents call.
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	modelRef := "models/" + p.model
	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:                modelRef,
			Content:              geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType:             "RETRIEVAL_DOCUMENT",
			OutputDimensionality: p.dimensions,
		}
	}
	url := fmt.Sprintf("%s/%s:batchEmbedContents", p.baseURL, modelRef)
	headers := map[string]string{"x-goog-api-key": p.apiKey}
	resp, err := utils.Retry(ctx, p.retry, func() (*geminiBatchResponse, error) {
		var out geminiBatchResponse
		if err := utils.PostJSON(ctx, p.client, "gemini", url, headers, req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrBadResponse, len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

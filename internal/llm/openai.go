package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second
)

// Config configures an OpenAI-compatible chat completions client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAI calls /chat/completions with the prompt as a single user message.
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	retry   utils.RetryConfig
}

var _ TextGenerator = (*OpenAI)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates a client. It returns ErrNotConfigured when cfg.APIKey is empty.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	return &OpenAI{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		retry:   retry,
	}, nil
}

// GenerateText implements TextGenerator. An empty req.Model uses the client default.
func (o *OpenAI) GenerateText(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	body := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	resp, err := utils.Retry(ctx, o.retry, func() (*chatResponse, error) {
		var out chatResponse
		if err := utils.PostJSON(ctx, o.client, "openai", o.baseURL+"/chat/completions", headers, body, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("text generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("text generation failed: empty choices")
	}
	return Response{Text: resp.Choices[0].Message.Content}, nil
}

// New builds the generator named by provider.
func New(provider string, cfg Config) (TextGenerator, error) {
	switch provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg)
	case ProviderMock:
		return NewMock(""), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, mock)", provider)
	}
}

package embedding

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/yomu/pkg/utils"
	"go.uber.org/zap"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// ProviderConfig describes one provider in a chain.
type ProviderConfig struct {
	Name       string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int

	// ONNX only.
	ModelPath string
	MaxTokens int
}

func (c ProviderConfig) retryConfig() utils.RetryConfig {
	r := utils.DefaultRetryConfig()
	if c.MaxRetries > 0 {
		r.MaxAttempts = c.MaxRetries
	}
	return r
}

// NewProvider builds the provider named by cfg.Name.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case ProviderGemini:
		return NewGeminiProvider(cfg)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderOllama:
		return NewOllamaProvider(cfg), nil
	case ProviderONNX:
		return NewONNXProvider(cfg)
	case ProviderMock:
		p := NewMockProvider(cfg.Dimensions)
		if cfg.Model != "" {
			p.WithModel(cfg.Model)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Name)
	}
}

// NewChainFromConfig builds a chain from cfgs, skipping providers that cannot
// be constructed. The mock provider is only used when it is the sole kind of
// provider configured; next to a real provider it is dropped. It fails with
// ErrNotConfigured when no provider can be built.
func NewChainFromConfig(cfgs []ProviderConfig, logger *zap.Logger) (*Chain, error) {
	logger = utils.OrNop(logger)
	if len(cfgs) == 0 {
		return nil, ErrNoProviders
	}
	mockOnly := true
	for _, cfg := range cfgs {
		if cfg.Name != ProviderMock {
			mockOnly = false
			break
		}
	}
	var (
		providers []Provider
		errs      []error
	)
	for _, cfg := range cfgs {
		if cfg.Name == ProviderMock && !mockOnly {
			logger.Warn("ignoring mock embedding provider next to real providers")
			continue
		}
		p, err := NewProvider(cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Name, err))
			logger.Warn("skipping embedding provider", zap.String("provider", cfg.Name), zap.Error(err))
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no usable embedding provider: %w", ErrNotConfigured, errors.Join(errs...))
	}
	return NewChain(logger, providers...), nil
}

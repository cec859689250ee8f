package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Chain tries providers in order. The first provider that returns one vector
// per input wins; if all fail, their errors are returned joined.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a chain over providers. logger may be nil.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger}
}

// Providers returns the providers in order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Model returns the model of the first provider, which is the model every
// vector is expected to come from.
func (c *Chain) Model() string {
	if len(c.providers) == 0 {
		return ""
	}
	return c.providers[0].Model()
}

// Embed embeds texts with the first provider that succeeds.
func (c *Chain) Embed(ctx context.Context, texts []string) (*Batch, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProviders
	}
	var errs []error
	for _, p := range c.providers {
		vecs, err := p.EmbedBatch(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("%w: %d vectors for %d texts", ErrBadResponse, len(vecs), len(texts))
		}
		if err == nil {
			return &Batch{Vectors: vecs, Model: p.Model(), Provider: p.Name()}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("embedding provider failed",
			zap.String("provider", p.Name()),
			zap.String("model", p.Model()),
			zap.Error(err))
	}
	return nil, errors.Join(errs...)
}

// Close closes every provider and returns their errors joined.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

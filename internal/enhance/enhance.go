// Package enhance uses an LLM to rewrite queries for retrieval and to describe
// documents (summary, keywords, table of contents), and extracts named
// entities with patterns. Every LLM failure degrades to a usable default.
package enhance

import (
	"encoding/json"
	"errors"
	"regexp"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/llm"
	"github.com/hyperjump/yomu/pkg/utils"
)

// DefaultModel is the chat model used for enhancement prompts.
const DefaultModel = "gpt-4o-mini"

var (
	errNoJSON = errors.New("no JSON found in response")

	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// Enhancer runs query enhancement and document metadata generation.
type Enhancer struct {
	gen    llm.TextGenerator
	model  string
	logger *zap.Logger
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(e *Enhancer) {
		if model != "" {
			e.model = model
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Enhancer) { e.logger = l }
}

// New creates an Enhancer over gen.
func New(gen llm.TextGenerator, opts ...Option) *Enhancer {
	e := &Enhancer{gen: gen, model: DefaultModel}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// decodeJSONObject decodes the outermost {...} span of an LLM reply into v.
func decodeJSONObject(reply string, v any) error {
	match := jsonObjectRe.FindString(reply)
	if match == "" {
		return errNoJSON
	}
	return json.Unmarshal([]byte(match), v)
}

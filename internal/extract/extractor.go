// Package extract turns uploaded documents into plain text.
//
// Parsers are tried in order by a Chain: a parser that does not handle the
// extension, or whose backend is unavailable, is skipped, and the first one
// returning text wins. When all of them fail the errors are reported together.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/pkg/utils"
)

// ErrUnsupported is returned for extensions no parser handles.
var ErrUnsupported = errors.New("unsupported document type")

// ErrParseFailed is returned when every parser for an extension failed.
var ErrParseFailed = errors.New("parse failed")

var errNoText = errors.New("no text extracted")

// Document is the text of a parsed file. PageCount is 0 when the format has
// no notion of pages.
type Document struct {
	Text      string
	PageCount int
	Parser    string
}

// Parser extracts text from one family of formats. ext is lower case with a
// leading dot.
type Parser interface {
	Name() string
	Supports(ext string) bool
	Available() bool
	Parse(ctx context.Context, content []byte, ext string) (Document, error)
}

// Chain tries parsers in order.
type Chain struct {
	parsers []Parser
	logger  *zap.Logger
}

// NewChain creates a chain over parsers. logger may be nil.
func NewChain(logger *zap.Logger, parsers ...Parser) *Chain {
	return &Chain{parsers: parsers, logger: utils.OrNop(logger)}
}

// DefaultChain returns every built-in parser, native parsers before fallbacks.
func DefaultChain(logger *zap.Logger) *Chain {
	return NewChain(logger,
		PDFParser{},
		DOCXParser{},
		CatParser{},
		XLSXParser{},
		PPTXParser{},
		OpenDocumentParser{},
		PlainParser{},
	)
}

// NormalizeExt lower-cases ext and adds the leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Supports reports whether any available parser handles ext.
func (c *Chain) Supports(ext string) bool {
	ext = NormalizeExt(ext)
	for _, p := range c.parsers {
		if p.Supports(ext) && p.Available() {
			return true
		}
	}
	return false
}

// Extensions lists the extensions handled by available parsers, sorted.
func (c *Chain) Extensions() []string {
	seen := make(map[string]struct{})
	for _, p := range c.parsers {
		if !p.Available() {
			continue
		}
		for _, ext := range knownExtensions {
			if p.Supports(ext) {
				seen[ext] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for ext := range seen {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Parse extracts text from content. A parser that succeeds with blank text
// only wins when no other parser produces text.
func (c *Chain) Parse(ctx context.Context, content []byte, ext string) (Document, error) {
	ext = NormalizeExt(ext)
	var (
		errs  []error
		blank *Document
		tried int
	)
	for _, p := range c.parsers {
		if !p.Supports(ext) || !p.Available() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		tried++
		doc, err := p.Parse(ctx, content, ext)
		if err != nil {
			c.logger.Debug("parser failed",
				zap.String("parser", p.Name()),
				zap.String("ext", ext),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		doc.Parser = p.Name()
		if strings.TrimSpace(doc.Text) == "" {
			if blank == nil {
				blank = &doc
			}
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), errNoText))
			continue
		}
		return doc, nil
	}
	if tried == 0 {
		return Document{}, fmt.Errorf("parse failed for %s: %w", ext, ErrUnsupported)
	}
	if blank != nil {
		return *blank, nil
	}
	return Document{}, fmt.Errorf("%w for %s: %w", ErrParseFailed, ext, errors.Join(errs...))
}

// ParseFile reads path and parses it by its extension.
func (c *Chain) ParseFile(ctx context.Context, path string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read file: %w", err)
	}
	return c.Parse(ctx, content, filepath.Ext(path))
}

var knownExtensions = []string{
	".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".pptx", ".odp", ".ods",
	".txt", ".md", ".markdown", ".rst", ".csv", ".log", ".json",
}

package extract

import (
	"context"
	"fmt"

	"github.com/lu4p/cat"
)

// CatParser is the fallback for word-processor formats, backed by lu4p/cat.
// Its DOCX support misses paragraphs that carry attributes, so DOCXParser
// runs first.
type CatParser struct{}

func (CatParser) Name() string { return "cat" }

func (CatParser) Supports(ext string) bool {
	switch ext {
	case ".docx", ".odt", ".rtf":
		return true
	}
	return false
}

func (CatParser) Available() bool { return true }

func (CatParser) Parse(ctx context.Context, content []byte, _ string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	text, err := cat.FromBytes(content)
	if err != nil {
		return Document{}, fmt.Errorf("convert document: %w", err)
	}
	return Document{Text: text}, nil
}

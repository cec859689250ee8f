package extract

import (
	"context"
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// PlainParser passes text files through. Content must be valid UTF-8.
type PlainParser struct{}

func (PlainParser) Name() string { return "plain" }

func (PlainParser) Supports(ext string) bool {
	switch ext {
	case "", ".txt", ".md", ".markdown", ".rst", ".csv", ".log", ".json":
		return true
	}
	return false
}

func (PlainParser) Available() bool { return true }

func (PlainParser) Parse(_ context.Context, content []byte, _ string) (Document, error) {
	if !utf8.Valid(content) {
		return Document{}, errInvalidUTF8
	}
	return Document{Text: string(content)}, nil
}

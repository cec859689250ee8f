package llm

import (
	"context"
	"sync"
)

// Mock returns canned text and records the requests it received.
type Mock struct {
	mu       sync.Mutex
	text     string
	err      error
	respond  func(Request) (string, error)
	requests []Request
}

var _ TextGenerator = (*Mock)(nil)

// NewMock returns a generator that always answers text.
func NewMock(text string) *Mock {
	return &Mock{text: text}
}

// NewMockFunc returns a generator that answers with fn.
func NewMockFunc(fn func(Request) (string, error)) *Mock {
	return &Mock{respond: fn}
}

// NewFailingMock returns a generator that always fails with err.
func NewFailingMock(err error) *Mock {
	return &Mock{err: err}
}

// GenerateText implements TextGenerator.
func (m *Mock) GenerateText(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if m.err != nil {
		return Response{}, m.err
	}
	if m.respond != nil {
		text, err := m.respond(req)
		return Response{Text: text}, err
	}
	return Response{Text: m.text}, nil
}

// Requests returns a copy of the requests received so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

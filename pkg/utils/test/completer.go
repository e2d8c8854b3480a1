package testutils

import (
	"context"
	"fmt"

	"github.com/engramlabs/engram/pkg/llm"
)

// MockCompleter is a test completer that replays scripted responses in
// order and records every request it receives.
type MockCompleter struct {
	// Responses are returned one per Complete call, in order.
	Responses []*llm.Response

	// CompleteFunc overrides the scripted responses when set.
	CompleteFunc func(ctx context.Context, req *llm.Request) (*llm.Response, error)

	// Requests accumulates all requests passed to Complete.
	Requests []*llm.Request

	// Err causes Complete to return an error.
	Err error

	calls int
}

func NewMockCompleter(responses ...*llm.Response) *MockCompleter {
	return &MockCompleter{
		Responses: responses,
	}
}

// TextResponse is a convenience for scripting a content-only response.
func TextResponse(content string) *llm.Response {
	return &llm.Response{Content: content}
}

func (m *MockCompleter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.Requests = append(m.Requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}

	if m.calls >= len(m.Responses) {
		return nil, fmt.Errorf("mock completer exhausted after %d calls", m.calls)
	}

	resp := m.Responses[m.calls]
	m.calls++

	return resp, nil
}

func (m *MockCompleter) Close() error {
	return nil
}

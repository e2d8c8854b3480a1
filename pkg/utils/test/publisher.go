package testutils

import (
	"context"
	"sync"

	"github.com/engramlabs/engram/pkg/eventstream"
)

// MockPublisher records published mutation events.
type MockPublisher struct {
	mu sync.Mutex

	// Events accumulates all published events, oldest first.
	Events []*eventstream.MemoryMutationEvent
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishMutation(_ context.Context, event *eventstream.MemoryMutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)

	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

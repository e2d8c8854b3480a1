package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/engramlabs/engram/pkg/history"
)

// MockLedger is a test history ledger that records appends in memory.
type MockLedger struct {
	mu sync.Mutex

	// Records accumulates all appended records, oldest first.
	Records []history.Record

	// FailAppend causes Append to return an error.
	FailAppend bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

func (m *MockLedger) Append(_ context.Context, r history.Record) error {
	if m.FailAppend {
		return fmt.Errorf("mock ledger append failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, r)

	return nil
}

func (m *MockLedger) Get(_ context.Context, memoryID string) ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []history.Record
	for i := len(m.Records) - 1; i >= 0; i-- {
		if m.Records[i].MemoryID == memoryID {
			out = append(out, m.Records[i])
		}
	}

	return out, nil
}

func (m *MockLedger) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = nil

	return nil
}

func (m *MockLedger) Close() error {
	return nil
}

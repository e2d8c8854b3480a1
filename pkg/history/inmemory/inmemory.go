// Package inmemory provides an in-memory history ledger for tests and
// ephemeral setups.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram/pkg/history"
)

// Ledger implements history.Ledger with an in-memory slice.
type Ledger struct {
	mu      sync.RWMutex
	records []history.Record
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append stores a record, generating an ID and timestamp when missing.
func (l *Ledger) Append(_ context.Context, r history.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, r)

	return nil
}

// Get returns all entries for a memory, most recent first.
func (l *Ledger) Get(_ context.Context, memoryID string) ([]history.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []history.Record
	// records is append-only so reverse iteration yields newest first
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].MemoryID == memoryID {
			out = append(out, l.records[i])
		}
	}

	return out, nil
}

// Reset removes all entries.
func (l *Ledger) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil

	return nil
}

// Close is a no-op for the in-memory ledger.
func (l *Ledger) Close() error {
	return nil
}

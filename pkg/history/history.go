// Package history defines the append-only ledger that records every
// memory mutation.
package history

import (
	"context"
	"time"
)

// Actions recorded in the ledger.
const (
	ActionAdd    = "ADD"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Record is a single ledger entry. Exactly one record is appended per
// applied mutation.
type Record struct {
	// ID uniquely identifies the ledger entry. Assigned on Append when empty.
	ID string `json:"id"`

	// MemoryID is the memory the mutation applied to.
	MemoryID string `json:"memory_id"`

	// PreviousValue is the memory text before the mutation. Empty for ADD.
	PreviousValue string `json:"previous_value,omitempty"`

	// NewValue is the memory text after the mutation. Empty for DELETE.
	NewValue string `json:"new_value,omitempty"`

	// Action is one of ActionAdd, ActionUpdate, ActionDelete.
	Action string `json:"action"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	// IsDeleted marks the memory as soft-deleted at the time of this entry.
	IsDeleted bool `json:"is_deleted"`
}

// Ledger persists mutation records. Entries are never rewritten.
type Ledger interface {
	// Append stores a record. When r.ID is empty an ID is generated.
	Append(ctx context.Context, r Record) error

	// Get returns all entries for a memory, most recent first.
	Get(ctx context.Context, memoryID string) ([]Record, error)

	// Reset removes all entries.
	Reset(ctx context.Context) error

	// Close releases any resources held by the ledger.
	Close() error
}

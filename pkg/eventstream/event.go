package eventstream

import (
	"time"

	"github.com/engramlabs/engram/pkg/scope"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryMutated is emitted after a memory mutation is applied.
	EventTypeMemoryMutated = "engram.memory.mutated"
)

// MemoryMutationEvent is a transport-neutral event payload for an applied
// memory mutation.
type MemoryMutationEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Scope         scope.Scope  `json:"scope"`
	Mutation      MutationMeta `json:"mutation"`
}

// MutationMeta captures what changed for the event.
type MutationMeta struct {
	MemoryID      string `json:"memory_id"`
	Action        string `json:"action"`
	PreviousValue string `json:"previous_value,omitempty"`
	NewValue      string `json:"new_value,omitempty"`
}

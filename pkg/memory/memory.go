// Package memory reconciles extracted facts against a vector store,
// recording every mutation in an append-only history ledger.
package memory

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/scope"
)

// Events describing what happened to a memory.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNone   = "NONE"
)

// Reasons a candidate fact was skipped without a store mutation.
const (
	SkipReasonDuplicate       = "duplicate"
	SkipReasonNoop            = "noop"
	SkipReasonUnknownTarget   = "unknown_target"
	SkipReasonDecisionFailed  = "decision_failed"
	SkipReasonEmbeddingFailed = "embedding_failed"
	SkipReasonStoreFailed     = "store_failed"
)

// Item is a stored memory as returned to callers.
type Item struct {
	ID         string         `json:"id"`
	Memory     string         `json:"memory"`
	Hash       string         `json:"hash,omitempty"`
	Score      float32        `json:"score,omitempty"`
	State      string         `json:"state,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at,omitzero"`
}

// Mutation is one applied change, reported per Add/Update/Delete.
type Mutation struct {
	ID             string `json:"id"`
	Memory         string `json:"memory"`
	PreviousMemory string `json:"previous_memory,omitempty"`
	Event          string `json:"event"`
}

// SkippedItem is a candidate fact that produced no mutation.
type SkippedItem struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// AddResult aggregates the outcome of one Add call. Partial failures are
// reported here, never as an error for the whole batch.
type AddResult struct {
	Mutations []Mutation       `json:"results"`
	Skipped   []SkippedItem    `json:"skipped,omitempty"`
	Relations *graph.Mutations `json:"relations,omitempty"`
}

// SearchResult aggregates vector hits and, when graph mode is enabled,
// matching graph triples.
type SearchResult struct {
	Items     []Item               `json:"results"`
	Relations []graph.Relationship `json:"relations,omitempty"`
}

// AddOptions controls one Add call.
type AddOptions struct {
	Scope scope.Scope

	// Metadata is attached to every memory created by this call.
	Metadata map[string]any

	// Raw stores each message verbatim, skipping fact extraction and
	// reconciliation.
	Raw bool
}

// contentHash is the idempotence key for a fact: the md5 hex digest of the
// whitespace-trimmed text.
func contentHash(text string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Package vector provides interfaces and implementations for vector storage
// of memory records.
package vector

import (
	"context"
	"time"
)

// Memory states carried in record payloads. Deleted records are retained
// for the history ledger but excluded from search and listing.
const (
	StateActive  = "active"
	StateUpdated = "updated"
	StateDeleted = "deleted"
)

// Payload carries the non-vector fields of a stored memory record.
type Payload struct {
	// Data is the canonical fact text.
	Data string `json:"data"`

	// Hash is the stable content hash of Data, used for idempotence checks.
	Hash string `json:"hash"`

	// State is one of StateActive, StateUpdated, StateDeleted.
	State string `json:"state"`

	// Scope fields. At least one of UserID/AgentID is set.
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	// Categories are optional topic labels attached after storage.
	Categories []string `json:"categories,omitempty"`

	// Metadata is an arbitrary caller-supplied bag, merged on update.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Record represents a stored memory with its embedding and payload.
type Record struct {
	// ID is a unique identifier for the record, assigned at creation.
	ID string

	// Embedding is the vector representation of the payload's Data.
	Embedding []float32

	Payload Payload
}

// SearchResult represents a search result with similarity score.
type SearchResult struct {
	Record

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Store handles storage and retrieval of memory records.
//
// Filters are equality matches on the payload's scope fields (user_id,
// agent_id, run_id) and metadata keys, combined with implicit AND. Search
// and List never return deleted records; Get returns a record regardless
// of state so history lookups keep working after a soft delete.
type Store interface {
	// Insert stores records with their embeddings. Inserting an ID that
	// already exists replaces the stored record (upsert), so re-applying
	// an applied mutation cannot create duplicates.
	Insert(ctx context.Context, records []Record) error

	// Search finds the limit most similar non-deleted records to the
	// given embedding, restricted by filters.
	Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]SearchResult, error)

	// Get retrieves a record by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Update replaces a record's embedding and payload by ID.
	Update(ctx context.Context, record Record) error

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// List returns non-deleted records matching the filters, newest first,
	// plus the total match count. A limit of 0 applies the adapter default.
	List(ctx context.Context, filters map[string]string, limit int) ([]Record, int, error)

	// DeleteCollection drops every record in the collection.
	DeleteCollection(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// MatchesFilters reports whether a payload satisfies an equality filter
// set. Scope keys match their dedicated fields; any other key matches
// against the metadata bag. Shared by adapters that filter in process.
func (p Payload) MatchesFilters(filters map[string]string) bool {
	for k, want := range filters {
		var got string
		switch k {
		case "user_id":
			got = p.UserID
		case "agent_id":
			got = p.AgentID
		case "run_id":
			got = p.RunID
		case "hash":
			got = p.Hash
		default:
			if v, ok := p.Metadata[k]; ok {
				if s, ok := v.(string); ok {
					got = s
				}
			}
		}
		if got != want {
			return false
		}
	}
	return true
}

// Package inmemory provides an in-process implementation of vector.Store.
//
// Records live in a map guarded by a RWMutex and search is a brute-force
// cosine scan. Intended for tests and local development; durable backends
// live in sqlitevec and qdrant.
package inmemory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/engramlabs/engram/pkg/vector"
)

// DefaultListLimit caps List results when the caller passes 0.
const DefaultListLimit = 100

// Store implements vector.Store using in-process data structures.
type Store struct {
	mu      sync.RWMutex
	records map[string]vector.Record
	logger  *slog.Logger
}

// NewStore creates an empty in-memory vector store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		records: make(map[string]vector.Record),
		logger:  logger,
	}
}

// Insert stores records, replacing any existing record with the same ID.
func (s *Store) Insert(_ context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.records[r.ID] = r
	}

	s.logger.Debug("inserted records", "count", len(records))

	return nil
}

// Search scans every non-deleted record matching the filters and returns
// the limit highest cosine similarities.
func (s *Store) Search(_ context.Context, embedding []float32, limit int, filters map[string]string) ([]vector.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []vector.SearchResult
	for _, r := range s.records {
		if r.Payload.State == vector.StateDeleted {
			continue
		}
		if !r.Payload.MatchesFilters(filters) {
			continue
		}
		results = append(results, vector.SearchResult{
			Record: r,
			Score:  cosine(embedding, r.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Get retrieves a record by ID regardless of state.
func (s *Store) Get(_ context.Context, id string) (*vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, vector.ErrNotFound
	}

	return &r, nil
}

// Update replaces a record by ID.
func (s *Store) Update(_ context.Context, record vector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return vector.ErrNotFound
	}
	s.records[record.ID] = record

	return nil
}

// Delete removes a record by ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return vector.ErrNotFound
	}
	delete(s.records, id)

	return nil
}

// List returns non-deleted records matching the filters, newest first.
func (s *Store) List(_ context.Context, filters map[string]string, limit int) ([]vector.Record, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []vector.Record
	for _, r := range s.records {
		if r.Payload.State == vector.StateDeleted {
			continue
		}
		if !r.Payload.MatchesFilters(filters) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Payload.CreatedAt.After(matched[j].Payload.CreatedAt)
	})

	total := len(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, total, nil
}

// DeleteCollection drops every record.
func (s *Store) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]vector.Record)

	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Store = (*Store)(nil)

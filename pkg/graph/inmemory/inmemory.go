// Package inmemory provides an in-memory graph store for tests and local
// development.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/scope"
)

// DefaultListLimit caps ListEdges results when the caller passes 0.
const DefaultListLimit = 100

type node struct {
	entity   graph.Entity
	mentions int
}

// Store implements graph.Store with in-memory maps.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node
	edges map[string]graph.Edge
}

// NewStore creates an empty in-memory graph store.
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*node),
		edges: make(map[string]graph.Edge),
	}
}

func nodeKey(name string, sc scope.Scope) string {
	return sc.Key() + "\x00" + name
}

func edgeKey(rel graph.Relationship, sc scope.Scope) string {
	return sc.Key() + "\x00" + rel.Source + "\x00" + rel.Relation + "\x00" + rel.Target
}

// UpsertNode creates the node or increments its mention count.
func (s *Store) UpsertNode(_ context.Context, entity graph.Entity, sc scope.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nodeKey(entity.Name, sc)
	if n, ok := s.nodes[key]; ok {
		n.mentions++
		return nil
	}

	s.nodes[key] = &node{entity: entity, mentions: 1}

	return nil
}

// UpsertEdge creates or replaces the edge.
func (s *Store) UpsertEdge(_ context.Context, edge graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges[edgeKey(edge.Relationship, edge.Scope)] = edge

	return nil
}

// UpdateEdge relabels the relationship between the edge's source and
// target, removing any existing edge between the two nodes first.
func (s *Store) UpdateEdge(_ context.Context, edge graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, stored := range s.edges {
		if stored.Scope == edge.Scope && stored.Source == edge.Source && stored.Target == edge.Target {
			delete(s.edges, key)
		}
	}

	s.edges[edgeKey(edge.Relationship, edge.Scope)] = edge

	return nil
}

// DeleteEdge removes the edge. Unknown edges are a no-op.
func (s *Store) DeleteEdge(_ context.Context, rel graph.Relationship, sc scope.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.edges, edgeKey(rel, sc))

	return nil
}

// SearchEdges returns in-scope edges whose cosine similarity to the query
// meets the threshold, best first.
func (s *Store) SearchEdges(_ context.Context, embedding []float32, limit int, threshold float32, sc scope.Scope) ([]graph.EdgeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []graph.EdgeResult
	for _, edge := range s.edges {
		if edge.Scope != sc {
			continue
		}

		score := cosine(embedding, edge.Embedding)
		if score < threshold {
			continue
		}

		results = append(results, graph.EdgeResult{Edge: edge, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// ListEdges returns up to limit edges in scope.
func (s *Store) ListEdges(_ context.Context, sc scope.Scope, limit int) ([]graph.Relationship, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []graph.Relationship
	for _, edge := range s.edges {
		if edge.Scope != sc {
			continue
		}
		rels = append(rels, edge.Relationship)
		if len(rels) == limit {
			break
		}
	}

	return rels, nil
}

// DeleteAll removes every node and edge in scope.
func (s *Store) DeleteAll(_ context.Context, sc scope.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := sc.Key() + "\x00"
	for key := range s.nodes {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.nodes, key)
		}
	}
	for key, edge := range s.edges {
		if edge.Scope == sc {
			delete(s.edges, key)
		}
	}

	return nil
}

// Mentions reports the mention count for a node, for tests.
func (s *Store) Mentions(name string, sc scope.Scope) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, ok := s.nodes[nodeKey(name, sc)]; ok {
		return n.mentions
	}

	return 0
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

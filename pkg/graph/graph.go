// Package graph maintains a knowledge graph of entities and relationships
// extracted from conversation, independent of the fact store.
package graph

import (
	"context"

	"github.com/engramlabs/engram/pkg/scope"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for an
// existing edge to be considered a match for an incoming relationship.
const DefaultSimilarityThreshold = 0.7

// Entity is a named node in the graph.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relationship is a directed edge between two entities.
type Relationship struct {
	Source     string `json:"source"`
	SourceType string `json:"source_type,omitempty"`
	Relation   string `json:"relationship"`
	Target     string `json:"target"`
	TargetType string `json:"target_type,omitempty"`
}

// Edge is a stored relationship with its embedding of the composite
// "source relation target" text.
type Edge struct {
	Relationship
	Embedding []float32
	Scope     scope.Scope
}

// EdgeResult is an edge returned from a similarity search.
type EdgeResult struct {
	Edge
	Score float32
}

// Mutations reports what a reconciliation pass changed.
type Mutations struct {
	Added   []Relationship `json:"added_entities,omitempty"`
	Updated []Relationship `json:"updated_entities,omitempty"`
	Deleted []Relationship `json:"deleted_entities,omitempty"`
}

// Store persists graph nodes and edges.
type Store interface {
	// UpsertNode creates the node when missing and increments its
	// mention count when present.
	UpsertNode(ctx context.Context, entity Entity, sc scope.Scope) error

	// UpsertEdge creates or replaces the edge keyed by
	// (source, relation, target, scope).
	UpsertEdge(ctx context.Context, edge Edge) error

	// UpdateEdge relabels the relationship between edge.Source and
	// edge.Target. Any existing edge between the two nodes in scope is
	// removed first, so a relation change replaces the old edge rather
	// than leaving both behind.
	UpdateEdge(ctx context.Context, edge Edge) error

	// DeleteEdge physically removes the edge. Unknown edges are a no-op.
	DeleteEdge(ctx context.Context, rel Relationship, sc scope.Scope) error

	// SearchEdges returns edges in scope whose embedding similarity to
	// the query meets the threshold, best first.
	SearchEdges(ctx context.Context, embedding []float32, limit int, threshold float32, sc scope.Scope) ([]EdgeResult, error)

	// ListEdges returns up to limit edges in scope.
	ListEdges(ctx context.Context, sc scope.Scope, limit int) ([]Relationship, error)

	// DeleteAll removes every node and edge in scope.
	DeleteAll(ctx context.Context, sc scope.Scope) error

	// Close releases any resources held by the store.
	Close() error
}

// Package neo4j provides a Neo4j-backed graph store.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/scope"
)

// DefaultListLimit caps ListEdges results when the caller passes 0.
const DefaultListLimit = 100

// relation names become Cypher relationship types, so they are restricted
// to a safe identifier alphabet
var relTypePattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Config holds configuration for the Neo4j store.
type Config struct {
	// URI is the bolt/neo4j connection URI, e.g. "neo4j://localhost:7687".
	URI string

	Username string
	Password string

	// Database selects a non-default database when set.
	Database string
}

// Store implements graph.Store using Neo4j.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewStore creates a Neo4j-backed graph store and verifies connectivity.
func NewStore(ctx context.Context, c Config, logger *slog.Logger) (*Store, error) {
	if c.URI == "" {
		return nil, fmt.Errorf("neo4j URI is required")
	}

	driver, err := neo4j.NewDriverWithContext(c.URI, neo4j.BasicAuth(c.Username, c.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", graph.ErrConnection, err)
	}

	return &Store{
		driver:   driver,
		database: c.Database,
		logger:   logger,
	}, nil
}

// UpsertNode creates the node or increments its mention count.
func (s *Store) UpsertNode(ctx context.Context, entity graph.Entity, sc scope.Scope) error {
	query := `
		MERGE (n:Entity {name: $name, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		ON CREATE SET n.entity_type = $entity_type, n.mentions = 1, n.created = timestamp()
		ON MATCH SET n.mentions = coalesce(n.mentions, 0) + 1
	`

	params := scopeParams(sc)
	params["name"] = entity.Name
	params["entity_type"] = entity.Type

	if _, err := s.run(ctx, query, params); err != nil {
		return fmt.Errorf("upserting node: %w", err)
	}

	return nil
}

// UpsertEdge creates or replaces the edge, storing the embedding on the
// relationship.
func (s *Store) UpsertEdge(ctx context.Context, edge graph.Edge) error {
	query := fmt.Sprintf(`
		MERGE (s:Entity {name: $source, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		MERGE (t:Entity {name: $target, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		MERGE (s)-[r:%s]->(t)
		ON CREATE SET r.created = timestamp()
		SET r.embedding = $embedding, r.updated = timestamp()
	`, relType(edge.Relation))

	params := scopeParams(edge.Scope)
	params["source"] = edge.Source
	params["target"] = edge.Target
	params["embedding"] = toFloat64s(edge.Embedding)

	if _, err := s.run(ctx, query, params); err != nil {
		return fmt.Errorf("upserting edge: %w", err)
	}

	return nil
}

// UpdateEdge relabels the relationship between the edge's source and
// target. Any existing relationship between the two nodes is deleted
// before the new one is created.
func (s *Store) UpdateEdge(ctx context.Context, edge graph.Edge) error {
	deleteQuery := `
		MATCH (s:Entity {name: $source, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
			-[r]->
			(t:Entity {name: $target, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		DELETE r
	`

	params := scopeParams(edge.Scope)
	params["source"] = edge.Source
	params["target"] = edge.Target

	if _, err := s.run(ctx, deleteQuery, params); err != nil {
		return fmt.Errorf("removing old edge: %w", err)
	}

	createQuery := fmt.Sprintf(`
		MATCH (s:Entity {name: $source, user_id: $user_id, agent_id: $agent_id, run_id: $run_id}),
			(t:Entity {name: $target, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		CREATE (s)-[r:%s]->(t)
		SET r.embedding = $embedding, r.created = timestamp()
	`, relType(edge.Relation))

	params["embedding"] = toFloat64s(edge.Embedding)

	if _, err := s.run(ctx, createQuery, params); err != nil {
		return fmt.Errorf("creating relabeled edge: %w", err)
	}

	return nil
}

// DeleteEdge physically removes the edge. Unknown edges are a no-op.
func (s *Store) DeleteEdge(ctx context.Context, rel graph.Relationship, sc scope.Scope) error {
	query := fmt.Sprintf(`
		MATCH (s:Entity {name: $source, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
			-[r:%s]->
			(t:Entity {name: $target, user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		DELETE r
	`, relType(rel.Relation))

	params := scopeParams(sc)
	params["source"] = rel.Source
	params["target"] = rel.Target

	if _, err := s.run(ctx, query, params); err != nil {
		return fmt.Errorf("deleting edge: %w", err)
	}

	return nil
}

// SearchEdges pulls in-scope edges and scores them client-side against the
// query embedding.
func (s *Store) SearchEdges(ctx context.Context, embedding []float32, limit int, threshold float32, sc scope.Scope) ([]graph.EdgeResult, error) {
	query := `
		MATCH (s:Entity {user_id: $user_id, agent_id: $agent_id, run_id: $run_id})-[r]->(t:Entity)
		RETURN s.name AS source, type(r) AS relation, t.name AS target, r.embedding AS embedding
	`

	result, err := s.run(ctx, query, scopeParams(sc))
	if err != nil {
		return nil, fmt.Errorf("searching edges: %w", err)
	}

	var results []graph.EdgeResult
	for _, record := range result.Records {
		edge, ok := recordToEdge(record, sc)
		if !ok {
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
func (s *Store) ListEdges(ctx context.Context, sc scope.Scope, limit int) ([]graph.Relationship, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		MATCH (s:Entity {user_id: $user_id, agent_id: $agent_id, run_id: $run_id})-[r]->(t:Entity)
		RETURN s.name AS source, type(r) AS relation, t.name AS target, r.embedding AS embedding
		LIMIT $limit
	`

	params := scopeParams(sc)
	params["limit"] = limit

	result, err := s.run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}

	var rels []graph.Relationship
	for _, record := range result.Records {
		if edge, ok := recordToEdge(record, sc); ok {
			rels = append(rels, edge.Relationship)
		}
	}

	return rels, nil
}

// DeleteAll removes every node and edge in scope.
func (s *Store) DeleteAll(ctx context.Context, sc scope.Scope) error {
	query := `
		MATCH (n:Entity {user_id: $user_id, agent_id: $agent_id, run_id: $run_id})
		DETACH DELETE n
	`

	if _, err := s.run(ctx, query, scopeParams(sc)); err != nil {
		return fmt.Errorf("deleting graph scope: %w", err)
	}

	return nil
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

func (s *Store) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
	)
}

func scopeParams(sc scope.Scope) map[string]any {
	return map[string]any{
		"user_id":  sc.UserID,
		"agent_id": sc.AgentID,
		"run_id":   sc.RunID,
	}
}

func recordToEdge(record *neo4j.Record, sc scope.Scope) (graph.Edge, bool) {
	source, _ := record.Get("source")
	relation, _ := record.Get("relation")
	target, _ := record.Get("target")
	rawEmbedding, _ := record.Get("embedding")

	sourceName, ok := source.(string)
	if !ok {
		return graph.Edge{}, false
	}
	relationName, ok := relation.(string)
	if !ok {
		return graph.Edge{}, false
	}
	targetName, ok := target.(string)
	if !ok {
		return graph.Edge{}, false
	}

	var embedding []float32
	if values, ok := rawEmbedding.([]any); ok {
		embedding = make([]float32, 0, len(values))
		for _, v := range values {
			if f, ok := v.(float64); ok {
				embedding = append(embedding, float32(f))
			}
		}
	}

	return graph.Edge{
		Relationship: graph.Relationship{
			Source:   sourceName,
			Relation: relationName,
			Target:   targetName,
		},
		Embedding: embedding,
		Scope:     sc,
	}, true
}

func relType(relation string) string {
	cleaned := relTypePattern.ReplaceAllString(relation, "_")
	if cleaned == "" {
		cleaned = "related_to"
	}

	return strings.ToUpper(cleaned)
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}

	return out
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

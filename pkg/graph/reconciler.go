package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/scope"
)

// DefaultSearchLimit caps similarity search results during reconciliation.
const DefaultSearchLimit = 10

// Config holds configuration for the graph reconciler.
type Config struct {
	// SimilarityThreshold overrides DefaultSimilarityThreshold when > 0.
	SimilarityThreshold float32

	// SearchLimit overrides DefaultSearchLimit when > 0.
	SearchLimit int
}

// Reconciler extracts entities and relationships from text and reconciles
// them against the stored graph.
type Reconciler struct {
	completer llm.Completer
	embedder  embeddings.Embedder
	store     Store
	logger    *slog.Logger

	threshold   float32
	searchLimit int
}

// NewReconciler creates a graph reconciler.
func NewReconciler(completer llm.Completer, embedder embeddings.Embedder, store Store, c Config, logger *slog.Logger) *Reconciler {
	threshold := c.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	searchLimit := c.SearchLimit
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}

	return &Reconciler{
		completer:   completer,
		embedder:    embedder,
		store:       store,
		logger:      logger,
		threshold:   threshold,
		searchLimit: searchLimit,
	}
}

// Add extracts entities and relationships from the text, relabels or
// deletes stored edges the new information supersedes, and upserts the
// rest.
func (r *Reconciler) Add(ctx context.Context, text string, sc scope.Scope) (*Mutations, error) {
	entities, err := r.extractEntities(ctx, text, sc)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return &Mutations{}, nil
	}

	rels, err := r.establishRelationships(ctx, text, entities)
	if err != nil {
		return nil, err
	}

	updated, deleted, err := r.reconcileExisting(ctx, text, rels, sc)
	if err != nil {
		// a failed decision pass must not lose the new relationships
		r.logger.Warn("graph decision pass failed", "error", err)
	}

	mutations := &Mutations{Updated: updated, Deleted: deleted}

	relabeled := make(map[string]bool, len(updated))
	for _, rel := range updated {
		relabeled[rel.Source+"\x00"+rel.Target] = true
	}

	types := make(map[string]string, len(entities))
	for _, e := range entities {
		types[e.Name] = e.Type
	}

	for _, rel := range rels {
		// a relabel already applied the new relation between these nodes
		if relabeled[rel.Source+"\x00"+rel.Target] {
			continue
		}
		if err := r.store.UpsertNode(ctx, Entity{Name: rel.Source, Type: entityType(types, rel.Source)}, sc); err != nil {
			r.logger.Warn("upserting source node", "entity", rel.Source, "error", err)
			continue
		}
		if err := r.store.UpsertNode(ctx, Entity{Name: rel.Target, Type: entityType(types, rel.Target)}, sc); err != nil {
			r.logger.Warn("upserting target node", "entity", rel.Target, "error", err)
			continue
		}

		embedding, err := r.embedder.Embed(ctx, compositeText(rel))
		if err != nil {
			r.logger.Warn("embedding relationship", "relationship", compositeText(rel), "error", err)
			continue
		}

		if err := r.store.UpsertEdge(ctx, Edge{Relationship: rel, Embedding: embedding, Scope: sc}); err != nil {
			r.logger.Warn("upserting edge", "relationship", compositeText(rel), "error", err)
			continue
		}

		mutations.Added = append(mutations.Added, rel)
	}

	return mutations, nil
}

// Search embeds the query, finds edges above the similarity threshold and
// reranks them by token overlap with the query.
func (r *Reconciler) Search(ctx context.Context, query string, sc scope.Scope, limit int) ([]Relationship, error) {
	if limit <= 0 {
		limit = r.searchLimit
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.store.SearchEdges(ctx, embedding, r.searchLimit, r.threshold, sc)
	if err != nil {
		return nil, fmt.Errorf("searching edges: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return tokenOverlap(query, compositeText(results[i].Relationship)) >
			tokenOverlap(query, compositeText(results[j].Relationship))
	})

	if len(results) > limit {
		results = results[:limit]
	}

	rels := make([]Relationship, 0, len(results))
	for _, res := range results {
		rels = append(rels, res.Relationship)
	}

	return rels, nil
}

// List returns stored relationships in scope.
func (r *Reconciler) List(ctx context.Context, sc scope.Scope, limit int) ([]Relationship, error) {
	return r.store.ListEdges(ctx, sc, limit)
}

// DeleteAll removes every node and edge in scope.
func (r *Reconciler) DeleteAll(ctx context.Context, sc scope.Scope) error {
	return r.store.DeleteAll(ctx, sc)
}

type extractedEntities struct {
	Entities []struct {
		Entity     string `json:"entity"`
		EntityType string `json:"entity_type"`
	} `json:"entities"`
}

func (r *Reconciler) extractEntities(ctx context.Context, text string, sc scope.Scope) ([]Entity, error) {
	resp, err := r.completer.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractEntitiesPrompt(sc.Owner())},
			{Role: llm.RoleUser, Content: text},
		},
		Tools: []llm.Tool{ExtractEntitiesTool},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: extracting entities: %v", ErrExtraction, err)
	}

	var entities []Entity
	for _, call := range resp.ToolCalls {
		if call.Name != ToolExtractEntities {
			continue
		}

		var parsed extractedEntities
		if err := json.Unmarshal(call.Arguments, &parsed); err != nil {
			return nil, fmt.Errorf("%w: parsing entities: %v", llm.ErrMalformedResponse, err)
		}

		for _, e := range parsed.Entities {
			if e.Entity == "" {
				continue
			}
			entities = append(entities, Entity{
				Name: normalizeName(e.Entity),
				Type: normalizeName(e.EntityType),
			})
		}
	}

	return entities, nil
}

type extractedRelationships struct {
	Entities []struct {
		Source       string `json:"source"`
		Relationship string `json:"relationship"`
		Destination  string `json:"destination"`
	} `json:"entities"`
}

func (r *Reconciler) establishRelationships(ctx context.Context, text string, entities []Entity) ([]Relationship, error) {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}

	resp, err := r.completer.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: establishRelationshipsPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Entities: %s.\n\nText: %s", strings.Join(names, ", "), text)},
		},
		Tools: []llm.Tool{EstablishRelationshipsTool},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: establishing relationships: %v", ErrExtraction, err)
	}

	var rels []Relationship
	for _, call := range resp.ToolCalls {
		if call.Name != ToolEstablishRelationships {
			continue
		}

		var parsed extractedRelationships
		if err := json.Unmarshal(call.Arguments, &parsed); err != nil {
			return nil, fmt.Errorf("%w: parsing relationships: %v", llm.ErrMalformedResponse, err)
		}

		for _, rel := range parsed.Entities {
			if rel.Source == "" || rel.Relationship == "" || rel.Destination == "" {
				continue
			}
			rels = append(rels, Relationship{
				Source:   normalizeName(rel.Source),
				Relation: normalizeName(rel.Relationship),
				Target:   normalizeName(rel.Destination),
			})
		}
	}

	return rels, nil
}

// reconcileExisting finds stored edges near the new relationships and asks
// the model, per edge, whether the new text relabels it, contradicts it,
// or leaves it alone.
func (r *Reconciler) reconcileExisting(ctx context.Context, text string, rels []Relationship, sc scope.Scope) (updated, deleted []Relationship, err error) {
	seen := make(map[string]bool)
	var existing []Relationship

	for _, rel := range rels {
		embedding, err := r.embedder.Embed(ctx, compositeText(rel))
		if err != nil {
			return nil, nil, fmt.Errorf("embedding relationship: %w", err)
		}

		results, err := r.store.SearchEdges(ctx, embedding, r.searchLimit, r.threshold, sc)
		if err != nil {
			return nil, nil, fmt.Errorf("searching edges: %w", err)
		}

		for _, res := range results {
			key := compositeText(res.Relationship)
			if seen[key] {
				continue
			}
			seen[key] = true
			existing = append(existing, res.Relationship)
		}
	}

	if len(existing) == 0 {
		return nil, nil, nil
	}

	resp, err := r.completer.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: reconcileEdgesPrompt(sc.Owner(), existing, text)},
		},
		Tools: []llm.Tool{UpdateGraphMemoryTool, DeleteGraphMemoryTool, NoopTool},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("edge decision: %w", err)
	}

	for _, call := range resp.ToolCalls {
		var parsed struct {
			Source       string `json:"source"`
			Relationship string `json:"relationship"`
			Destination  string `json:"destination"`
		}

		switch call.Name {
		case ToolUpdateGraphMemory:
			if err := json.Unmarshal(call.Arguments, &parsed); err != nil {
				r.logger.Warn("malformed update tool call", "error", err)
				continue
			}

			rel := Relationship{
				Source:   normalizeName(parsed.Source),
				Relation: normalizeName(parsed.Relationship),
				Target:   normalizeName(parsed.Destination),
			}

			embedding, err := r.embedder.Embed(ctx, compositeText(rel))
			if err != nil {
				r.logger.Warn("embedding relabeled edge", "relationship", compositeText(rel), "error", err)
				continue
			}

			if err := r.store.UpdateEdge(ctx, Edge{Relationship: rel, Embedding: embedding, Scope: sc}); err != nil {
				r.logger.Warn("relabeling edge", "relationship", compositeText(rel), "error", err)
				continue
			}

			updated = append(updated, rel)

		case ToolDeleteGraphMemory:
			if err := json.Unmarshal(call.Arguments, &parsed); err != nil {
				r.logger.Warn("malformed delete tool call", "error", err)
				continue
			}

			rel := Relationship{
				Source:   normalizeName(parsed.Source),
				Relation: normalizeName(parsed.Relationship),
				Target:   normalizeName(parsed.Destination),
			}

			if err := r.store.DeleteEdge(ctx, rel, sc); err != nil {
				r.logger.Warn("deleting edge", "relationship", compositeText(rel), "error", err)
				continue
			}

			deleted = append(deleted, rel)
		}
	}

	return updated, deleted, nil
}

func entityType(types map[string]string, name string) string {
	if t, ok := types[name]; ok && t != "" {
		return t
	}

	return "entity"
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func compositeText(rel Relationship) string {
	return rel.Source + " " + rel.Relation + " " + rel.Target
}

// tokenOverlap scores how many of the query's tokens appear in the text.
func tokenOverlap(query, text string) float32 {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return 0
	}

	textTokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(strings.ReplaceAll(text, "_", " "))) {
		textTokens[tok] = true
	}

	var hits int
	for _, tok := range queryTokens {
		if textTokens[tok] {
			hits++
		}
	}

	return float32(hits) / float32(len(queryTokens))
}

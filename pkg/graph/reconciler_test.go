package graph_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/graph/inmemory"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/scope"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
)

func toolCall(name string, args any) *llm.Response {
	raw, err := json.Marshal(args)
	Expect(err).NotTo(HaveOccurred())

	return &llm.Response{
		ToolCalls: []llm.ToolCall{{Name: name, Arguments: raw}},
	}
}

var _ = Describe("Reconciler", func() {
	var (
		store    *inmemory.Store
		embedder *testutils.MockEmbedder
		ctx      context.Context
		alice    scope.Scope
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		embedder = testutils.NewMockEmbedder()
		ctx = context.Background()
		alice = scope.Scope{UserID: "alice"}
	})

	newReconciler := func(completer llm.Completer) *graph.Reconciler {
		return graph.NewReconciler(completer, embedder, store, graph.Config{}, logger.Nop())
	}

	Describe("Add", func() {
		It("extracts relationships and upserts nodes and edges", func() {
			completer := testutils.NewMockCompleter(
				toolCall(graph.ToolExtractEntities, map[string]any{
					"entities": []map[string]string{
						{"entity": "Alice", "entity_type": "person"},
						{"entity": "Pizza", "entity_type": "food"},
					},
				}),
				toolCall(graph.ToolEstablishRelationships, map[string]any{
					"entities": []map[string]string{
						{"source": "Alice", "relationship": "likes", "destination": "Pizza"},
					},
				}),
			)

			mutations, err := newReconciler(completer).Add(ctx, "Alice likes pizza", alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(mutations.Added).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "likes", Target: "pizza",
			}))
			Expect(mutations.Deleted).To(BeEmpty())

			Expect(store.Mentions("alice", alice)).To(Equal(1))
			Expect(store.Mentions("pizza", alice)).To(Equal(1))
		})

		It("returns no mutations when no entities are found", func() {
			completer := testutils.NewMockCompleter(
				toolCall(graph.ToolExtractEntities, map[string]any{"entities": []map[string]string{}}),
			)

			mutations, err := newReconciler(completer).Add(ctx, "hmm", alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(mutations.Added).To(BeEmpty())
			Expect(mutations.Deleted).To(BeEmpty())
		})

		It("deletes contradicted edges before adding new ones", func() {
			// seed an edge that the new text contradicts
			embedder.Embeddings["alice likes pizza"] = []float32{1, 0}
			embedder.Embeddings["alice hates pizza"] = []float32{0.9, 0.1}

			Expect(store.UpsertEdge(ctx, graph.Edge{
				Relationship: graph.Relationship{Source: "alice", Relation: "likes", Target: "pizza"},
				Embedding:    []float32{1, 0},
				Scope:        alice,
			})).To(Succeed())

			completer := testutils.NewMockCompleter(
				toolCall(graph.ToolExtractEntities, map[string]any{
					"entities": []map[string]string{
						{"entity": "Alice", "entity_type": "person"},
						{"entity": "Pizza", "entity_type": "food"},
					},
				}),
				toolCall(graph.ToolEstablishRelationships, map[string]any{
					"entities": []map[string]string{
						{"source": "Alice", "relationship": "hates", "destination": "Pizza"},
					},
				}),
				toolCall(graph.ToolDeleteGraphMemory, map[string]string{
					"source": "alice", "relationship": "likes", "destination": "pizza",
				}),
			)

			mutations, err := newReconciler(completer).Add(ctx, "Alice hates pizza now", alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(mutations.Deleted).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "likes", Target: "pizza",
			}))
			Expect(mutations.Added).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "hates", Target: "pizza",
			}))

			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "hates", Target: "pizza",
			}))
		})

		It("relabels an existing edge in place when the model calls update", func() {
			embedder.Embeddings["alice likes pizza"] = []float32{1, 0}
			embedder.Embeddings["alice loves pizza"] = []float32{0.9, 0.1}

			Expect(store.UpsertEdge(ctx, graph.Edge{
				Relationship: graph.Relationship{Source: "alice", Relation: "likes", Target: "pizza"},
				Embedding:    []float32{1, 0},
				Scope:        alice,
			})).To(Succeed())

			completer := testutils.NewMockCompleter(
				toolCall(graph.ToolExtractEntities, map[string]any{
					"entities": []map[string]string{
						{"entity": "Alice", "entity_type": "person"},
						{"entity": "Pizza", "entity_type": "food"},
					},
				}),
				toolCall(graph.ToolEstablishRelationships, map[string]any{
					"entities": []map[string]string{
						{"source": "Alice", "relationship": "loves", "destination": "Pizza"},
					},
				}),
				toolCall(graph.ToolUpdateGraphMemory, map[string]string{
					"source": "alice", "destination": "pizza", "relationship": "loves",
				}),
			)

			mutations, err := newReconciler(completer).Add(ctx, "Alice absolutely loves pizza", alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(mutations.Updated).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "loves", Target: "pizza",
			}))
			Expect(mutations.Added).To(BeEmpty())
			Expect(mutations.Deleted).To(BeEmpty())

			// the old relation is gone, not sitting beside the new one
			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "loves", Target: "pizza",
			}))
		})

		It("keeps edges when the model calls noop", func() {
			embedder.Embeddings["alice likes pizza"] = []float32{1, 0}
			embedder.Embeddings["alice likes pasta"] = []float32{0.9, 0.1}

			Expect(store.UpsertEdge(ctx, graph.Edge{
				Relationship: graph.Relationship{Source: "alice", Relation: "likes", Target: "pizza"},
				Embedding:    []float32{1, 0},
				Scope:        alice,
			})).To(Succeed())

			completer := testutils.NewMockCompleter(
				toolCall(graph.ToolExtractEntities, map[string]any{
					"entities": []map[string]string{
						{"entity": "Alice", "entity_type": "person"},
						{"entity": "Pasta", "entity_type": "food"},
					},
				}),
				toolCall(graph.ToolEstablishRelationships, map[string]any{
					"entities": []map[string]string{
						{"source": "Alice", "relationship": "likes", "destination": "Pasta"},
					},
				}),
				toolCall(graph.ToolNoop, map[string]string{}),
			)

			mutations, err := newReconciler(completer).Add(ctx, "Alice also likes pasta", alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(mutations.Deleted).To(BeEmpty())

			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(HaveLen(2))
		})

		It("surfaces extraction failures", func() {
			completer := testutils.NewMockCompleter()
			completer.Err = graph.ErrExtraction

			_, err := newReconciler(completer).Add(ctx, "Alice likes pizza", alice)
			Expect(err).To(MatchError(graph.ErrExtraction))
		})
	})

	Describe("Search", func() {
		It("returns matching triples for the query", func() {
			embedder.Embeddings["food preferences"] = []float32{1, 0}

			Expect(store.UpsertEdge(ctx, graph.Edge{
				Relationship: graph.Relationship{Source: "alice", Relation: "likes", Target: "pizza"},
				Embedding:    []float32{1, 0},
				Scope:        alice,
			})).To(Succeed())
			Expect(store.UpsertEdge(ctx, graph.Edge{
				Relationship: graph.Relationship{Source: "alice", Relation: "plays", Target: "tennis"},
				Embedding:    []float32{0, 1},
				Scope:        alice,
			})).To(Succeed())

			rels, err := newReconciler(testutils.NewMockCompleter()).Search(ctx, "food preferences", alice, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(ConsistOf(graph.Relationship{
				Source: "alice", Relation: "likes", Target: "pizza",
			}))
		})
	})
})

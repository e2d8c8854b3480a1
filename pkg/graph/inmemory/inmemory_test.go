package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/graph/inmemory"
	"github.com/engramlabs/engram/pkg/scope"
)

var _ = Describe("Store", func() {
	var (
		store *inmemory.Store
		ctx   context.Context
		alice scope.Scope
		bob   scope.Scope
	)

	edge := func(source, relation, target string, sc scope.Scope, emb []float32) graph.Edge {
		return graph.Edge{
			Relationship: graph.Relationship{Source: source, Relation: relation, Target: target},
			Embedding:    emb,
			Scope:        sc,
		}
	}

	BeforeEach(func() {
		store = inmemory.NewStore()
		ctx = context.Background()
		alice = scope.Scope{UserID: "alice"}
		bob = scope.Scope{UserID: "bob"}
	})

	It("should implement graph.Store", func() {
		var _ graph.Store = (*inmemory.Store)(nil)
	})

	Describe("UpsertNode", func() {
		It("increments mentions on repeat upserts", func() {
			entity := graph.Entity{Name: "alice", Type: "person"}
			Expect(store.UpsertNode(ctx, entity, alice)).To(Succeed())
			Expect(store.UpsertNode(ctx, entity, alice)).To(Succeed())

			Expect(store.Mentions("alice", alice)).To(Equal(2))
		})

		It("keeps mention counts per scope", func() {
			entity := graph.Entity{Name: "pizza", Type: "food"}
			Expect(store.UpsertNode(ctx, entity, alice)).To(Succeed())
			Expect(store.UpsertNode(ctx, entity, bob)).To(Succeed())

			Expect(store.Mentions("pizza", alice)).To(Equal(1))
			Expect(store.Mentions("pizza", bob)).To(Equal(1))
		})
	})

	Describe("UpsertEdge and SearchEdges", func() {
		It("replaces an edge with the same triple", func() {
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{1, 0}))).To(Succeed())
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{0, 1}))).To(Succeed())

			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(HaveLen(1))
		})

		It("returns edges above the threshold, best first", func() {
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{1, 0}))).To(Succeed())
			Expect(store.UpsertEdge(ctx, edge("alice", "plays", "tennis", alice, []float32{0, 1}))).To(Succeed())

			results, err := store.SearchEdges(ctx, []float32{1, 0}, 10, 0.7, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Relation).To(Equal("likes"))
		})

		It("does not return edges from other scopes", func() {
			Expect(store.UpsertEdge(ctx, edge("bob", "likes", "pizza", bob, []float32{1, 0}))).To(Succeed())

			results, err := store.SearchEdges(ctx, []float32{1, 0}, 10, 0.5, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("UpdateEdge", func() {
		It("replaces the old relation instead of adding a second edge", func() {
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{1, 0}))).To(Succeed())
			Expect(store.UpdateEdge(ctx, edge("alice", "loves", "pizza", alice, []float32{0, 1}))).To(Succeed())

			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(ConsistOf(graph.Relationship{Source: "alice", Relation: "loves", Target: "pizza"}))
		})

		It("leaves other scopes untouched", func() {
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{1, 0}))).To(Succeed())
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", bob, []float32{1, 0}))).To(Succeed())

			Expect(store.UpdateEdge(ctx, edge("alice", "loves", "pizza", alice, []float32{0, 1}))).To(Succeed())

			bobRels, err := store.ListEdges(ctx, bob, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(bobRels).To(ConsistOf(graph.Relationship{Source: "alice", Relation: "likes", Target: "pizza"}))
		})

		It("creates the edge when no prior edge exists", func() {
			Expect(store.UpdateEdge(ctx, edge("alice", "loves", "pizza", alice, []float32{0, 1}))).To(Succeed())

			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(HaveLen(1))
		})
	})

	Describe("DeleteEdge", func() {
		It("removes the edge", func() {
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{1, 0}))).To(Succeed())
			Expect(store.DeleteEdge(ctx, graph.Relationship{Source: "alice", Relation: "likes", Target: "pizza"}, alice)).To(Succeed())

			rels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rels).To(BeEmpty())
		})

		It("is a no-op for unknown edges", func() {
			Expect(store.DeleteEdge(ctx, graph.Relationship{Source: "x", Relation: "y", Target: "z"}, alice)).To(Succeed())
		})
	})

	Describe("DeleteAll", func() {
		It("clears only the given scope", func() {
			Expect(store.UpsertNode(ctx, graph.Entity{Name: "alice"}, alice)).To(Succeed())
			Expect(store.UpsertEdge(ctx, edge("alice", "likes", "pizza", alice, []float32{1, 0}))).To(Succeed())
			Expect(store.UpsertEdge(ctx, edge("bob", "likes", "pasta", bob, []float32{1, 0}))).To(Succeed())

			Expect(store.DeleteAll(ctx, alice)).To(Succeed())

			aliceRels, err := store.ListEdges(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(aliceRels).To(BeEmpty())
			Expect(store.Mentions("alice", alice)).To(Equal(0))

			bobRels, err := store.ListEdges(ctx, bob, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(bobRels).To(HaveLen(1))
		})
	})
})

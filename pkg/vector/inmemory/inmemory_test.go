package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
)

var _ = Describe("Store", func() {
	var (
		store *inmemory.Store
		ctx   context.Context
	)

	record := func(id, userID, data string, emb []float32) vector.Record {
		return vector.Record{
			ID:        id,
			Embedding: emb,
			Payload: vector.Payload{
				Data:      data,
				Hash:      "hash-" + id,
				State:     vector.StateActive,
				UserID:    userID,
				CreatedAt: time.Now().UTC(),
			},
		}
	}

	BeforeEach(func() {
		store = inmemory.NewStore(logger.Nop())
		ctx = context.Background()
	})

	Describe("Insert", func() {
		It("replaces an existing record with the same ID", func() {
			Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "likes pizza", []float32{1, 0})})).To(Succeed())
			Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "likes pasta", []float32{0, 1})})).To(Succeed())

			r, err := store.Get(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Payload.Data).To(Equal("likes pasta"))

			_, total, err := store.List(ctx, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(store.Insert(ctx, []vector.Record{
				record("m1", "alice", "likes pizza", []float32{1, 0}),
				record("m2", "alice", "plays tennis", []float32{0, 1}),
				record("m3", "bob", "likes pizza", []float32{1, 0}),
			})).To(Succeed())
		})

		It("ranks by cosine similarity", func() {
			results, err := store.Search(ctx, []float32{1, 0.1}, 10, map[string]string{"user_id": "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("m1"))
			Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
		})

		It("isolates scopes", func() {
			results, err := store.Search(ctx, []float32{1, 0}, 10, map[string]string{"user_id": "bob"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m3"))
		})

		It("excludes soft-deleted records", func() {
			r, err := store.Get(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			r.Payload.State = vector.StateDeleted
			Expect(store.Update(ctx, *r)).To(Succeed())

			results, err := store.Search(ctx, []float32{1, 0}, 10, map[string]string{"user_id": "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m2"))

			// still retrievable directly for history
			got, err := store.Get(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Payload.State).To(Equal(vector.StateDeleted))
		})

		It("filters on metadata keys", func() {
			r := record("m4", "alice", "prefers window seats", []float32{0.5, 0.5})
			r.Payload.Metadata = map[string]any{"source": "travel"}
			Expect(store.Insert(ctx, []vector.Record{r})).To(Succeed())

			results, err := store.Search(ctx, []float32{0.5, 0.5}, 10, map[string]string{
				"user_id": "alice",
				"source":  "travel",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m4"))
		})
	})

	Describe("Get", func() {
		It("returns ErrNotFound for unknown IDs", func() {
			_, err := store.Get(ctx, "missing")
			Expect(err).To(MatchError(vector.ErrNotFound))
		})
	})

	Describe("Update", func() {
		It("returns ErrNotFound for unknown IDs", func() {
			err := store.Update(ctx, record("missing", "alice", "x", []float32{1}))
			Expect(err).To(MatchError(vector.ErrNotFound))
		})
	})

	Describe("DeleteCollection", func() {
		It("drops everything", func() {
			Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "x", []float32{1})})).To(Succeed())
			Expect(store.DeleteCollection(ctx)).To(Succeed())

			_, total, err := store.List(ctx, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(0))
		})
	})
})

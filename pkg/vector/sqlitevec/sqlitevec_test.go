package sqlitevec_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/sqlitevec"
)

var _ = Describe("Store", func() {
	var (
		store *sqlitevec.Store
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

	Describe("NewStore", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: ""}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("should create a store with an in-memory database", func() {
			s, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(s).NotTo(BeNil())
			Expect(s.Close()).To(Succeed())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Store", func() {
			var _ vector.Store = (*sqlitevec.Store)(nil)
		})
	})

	Context("with an open store", func() {
		BeforeEach(func() {
			var err error
			store, err = sqlitevec.NewStore(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			ctx = context.Background()
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		Describe("Insert", func() {
			It("should do nothing when given empty records", func() {
				Expect(store.Insert(ctx, nil)).To(Succeed())
			})

			It("round-trips payload fields", func() {
				r := record("m1", "alice", "likes pizza", []float32{1, 0, 0, 0})
				r.Payload.Categories = []string{"food"}
				r.Payload.Metadata = map[string]any{"source": "chat"}
				Expect(store.Insert(ctx, []vector.Record{r})).To(Succeed())

				got, err := store.Get(ctx, "m1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Payload.Data).To(Equal("likes pizza"))
				Expect(got.Payload.Hash).To(Equal("hash-m1"))
				Expect(got.Payload.State).To(Equal(vector.StateActive))
				Expect(got.Payload.Categories).To(ConsistOf("food"))
				Expect(got.Payload.Metadata).To(HaveKeyWithValue("source", "chat"))
				Expect(got.Embedding).To(Equal([]float32{1, 0, 0, 0}))
			})

			It("replaces an existing record with the same ID", func() {
				Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "v1", []float32{1, 0, 0, 0})})).To(Succeed())
				Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "v2", []float32{0, 1, 0, 0})})).To(Succeed())

				got, err := store.Get(ctx, "m1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Payload.Data).To(Equal("v2"))

				_, total, err := store.List(ctx, nil, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(1))
			})
		})

		Describe("Search", func() {
			BeforeEach(func() {
				Expect(store.Insert(ctx, []vector.Record{
					record("m1", "alice", "likes pizza", []float32{1, 0, 0, 0}),
					record("m2", "alice", "plays tennis", []float32{0, 1, 0, 0}),
					record("m3", "bob", "likes pizza", []float32{1, 0, 0, 0}),
				})).To(Succeed())
			})

			It("restricts results to the scope filter", func() {
				results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, map[string]string{"user_id": "alice"})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(2))
				Expect(results[0].ID).To(Equal("m1"))
			})

			It("excludes soft-deleted records", func() {
				got, err := store.Get(ctx, "m1")
				Expect(err).NotTo(HaveOccurred())
				got.Payload.State = vector.StateDeleted
				Expect(store.Update(ctx, *got)).To(Succeed())

				results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, map[string]string{"user_id": "alice"})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].ID).To(Equal("m2"))
			})
		})

		Describe("Delete", func() {
			It("removes record and embedding", func() {
				Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "x", []float32{1, 0, 0, 0})})).To(Succeed())
				Expect(store.Delete(ctx, "m1")).To(Succeed())

				_, err := store.Get(ctx, "m1")
				Expect(err).To(MatchError(vector.ErrNotFound))
			})

			It("returns ErrNotFound for unknown IDs", func() {
				Expect(store.Delete(ctx, "missing")).To(MatchError(vector.ErrNotFound))
			})
		})

		Describe("List", func() {
			It("returns newest first with total count", func() {
				older := record("m1", "alice", "older", []float32{1, 0, 0, 0})
				older.Payload.CreatedAt = time.Now().UTC().Add(-time.Hour)
				newer := record("m2", "alice", "newer", []float32{0, 1, 0, 0})
				Expect(store.Insert(ctx, []vector.Record{older, newer})).To(Succeed())

				records, total, err := store.List(ctx, map[string]string{"user_id": "alice"}, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(2))
				Expect(records[0].ID).To(Equal("m2"))
			})
		})

		Describe("DeleteCollection", func() {
			It("clears all rows", func() {
				Expect(store.Insert(ctx, []vector.Record{record("m1", "alice", "x", []float32{1, 0, 0, 0})})).To(Succeed())
				Expect(store.DeleteCollection(ctx)).To(Succeed())

				_, total, err := store.List(ctx, nil, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(0))
			})
		})
	})
})

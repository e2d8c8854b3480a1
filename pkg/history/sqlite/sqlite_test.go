package sqlite_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/history/sqlite"
)

var _ = Describe("Ledger", func() {
	var (
		ledger *sqlite.Ledger
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		ledger, err = sqlite.NewLedger(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(ledger.Close()).To(Succeed())
	})

	Describe("NewLedger", func() {
		It("should return an error when the path is empty", func() {
			_, err := sqlite.NewLedger(ctx, "")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})
	})

	Describe("Interface compliance", func() {
		It("should implement history.Ledger", func() {
			var _ history.Ledger = (*sqlite.Ledger)(nil)
		})
	})

	Describe("Append and Get", func() {
		It("assigns an ID and timestamp when missing", func() {
			Expect(ledger.Append(ctx, history.Record{
				MemoryID: "mem-1",
				NewValue: "likes pizza",
				Action:   history.ActionAdd,
			})).To(Succeed())

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).NotTo(BeEmpty())
			Expect(records[0].CreatedAt).NotTo(BeZero())
			Expect(records[0].Action).To(Equal(history.ActionAdd))
		})

		It("returns entries most recent first", func() {
			base := time.Now().UTC().Add(-time.Hour)
			for i, action := range []string{history.ActionAdd, history.ActionUpdate, history.ActionDelete} {
				Expect(ledger.Append(ctx, history.Record{
					MemoryID:  "mem-1",
					Action:    action,
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				})).To(Succeed())
			}

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].Action).To(Equal(history.ActionDelete))
			Expect(records[2].Action).To(Equal(history.ActionAdd))
		})

		It("keeps insertion order for entries sharing a timestamp", func() {
			at := time.Now().UTC()
			for _, action := range []string{history.ActionAdd, history.ActionUpdate, history.ActionDelete} {
				Expect(ledger.Append(ctx, history.Record{
					MemoryID:  "mem-1",
					Action:    action,
					CreatedAt: at,
				})).To(Succeed())
			}

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].Action).To(Equal(history.ActionDelete))
			Expect(records[1].Action).To(Equal(history.ActionUpdate))
			Expect(records[2].Action).To(Equal(history.ActionAdd))
		})

		It("scopes entries to the requested memory", func() {
			Expect(ledger.Append(ctx, history.Record{MemoryID: "mem-1", Action: history.ActionAdd})).To(Succeed())
			Expect(ledger.Append(ctx, history.Record{MemoryID: "mem-2", Action: history.ActionAdd})).To(Succeed())

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].MemoryID).To(Equal("mem-1"))
		})

		It("round-trips previous and new values", func() {
			Expect(ledger.Append(ctx, history.Record{
				MemoryID:      "mem-1",
				PreviousValue: "likes pizza",
				NewValue:      "loves pizza",
				Action:        history.ActionUpdate,
			})).To(Succeed())

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].PreviousValue).To(Equal("likes pizza"))
			Expect(records[0].NewValue).To(Equal("loves pizza"))
		})

		It("round-trips the deleted flag", func() {
			Expect(ledger.Append(ctx, history.Record{
				MemoryID:      "mem-1",
				PreviousValue: "likes pizza",
				Action:        history.ActionDelete,
				IsDeleted:     true,
			})).To(Succeed())

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].IsDeleted).To(BeTrue())
		})

		It("returns no entries for an unknown memory", func() {
			records, err := ledger.Get(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("Reset", func() {
		It("removes all entries", func() {
			Expect(ledger.Append(ctx, history.Record{MemoryID: "mem-1", Action: history.ActionAdd})).To(Succeed())
			Expect(ledger.Reset(ctx)).To(Succeed())

			records, err := ledger.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})
})

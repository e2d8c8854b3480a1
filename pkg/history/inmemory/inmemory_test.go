package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/history/inmemory"
)

var _ = Describe("Ledger", func() {
	var (
		ledger *inmemory.Ledger
		ctx    context.Context
	)

	BeforeEach(func() {
		ledger = inmemory.NewLedger()
		ctx = context.Background()
	})

	It("should implement history.Ledger", func() {
		var _ history.Ledger = (*inmemory.Ledger)(nil)
	})

	It("returns entries most recent first", func() {
		Expect(ledger.Append(ctx, history.Record{MemoryID: "m", Action: history.ActionAdd})).To(Succeed())
		Expect(ledger.Append(ctx, history.Record{MemoryID: "m", Action: history.ActionUpdate})).To(Succeed())

		records, err := ledger.Get(ctx, "m")
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].Action).To(Equal(history.ActionUpdate))
	})

	It("assigns IDs on append", func() {
		Expect(ledger.Append(ctx, history.Record{MemoryID: "m", Action: history.ActionAdd})).To(Succeed())

		records, err := ledger.Get(ctx, "m")
		Expect(err).NotTo(HaveOccurred())
		Expect(records[0].ID).NotTo(BeEmpty())
	})

	It("resets to empty", func() {
		Expect(ledger.Append(ctx, history.Record{MemoryID: "m", Action: history.ActionAdd})).To(Succeed())
		Expect(ledger.Reset(ctx)).To(Succeed())

		records, err := ledger.Get(ctx, "m")
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})
})

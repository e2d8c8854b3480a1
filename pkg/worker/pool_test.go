package worker

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/scope"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
)

// newTestPool creates a worker pool backed by in-memory ports.
// Callers should "wp.Close()" to drain enqueued jobs before asserting state.
func newTestPool(workers uint) (*Pool, *memory.Manager, *testutils.MockLedger) {
	ledger := testutils.NewMockLedger()

	manager, err := memory.NewManager(memory.Opts{
		Completer: testutils.NewMockCompleter(),
		Embedder:  testutils.NewMockEmbedder(),
		Store:     inmemory.NewStore(logger.Nop()),
		Ledger:    ledger,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	wp, err := NewPool(&Config{
		Manager:    manager,
		NumWorkers: workers,
		Logger:     logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, manager, ledger
}

func rawJob(sc scope.Scope, text string) Job {
	return Job{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: text}},
		Options:  memory.AddOptions{Scope: sc, Raw: true},
	}
}

var _ = Describe("Worker Pool", func() {
	Describe("NewPool", func() {
		It("requires a manager", func() {
			_, err := NewPool(&Config{Logger: logger.Nop()})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp, _, _ := newTestPool(0)
			ok := wp.Enqueue(rawJob(scope.Scope{UserID: "alice"}, "hello"))
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("processes all jobs before Close returns", func() {
			wp, manager, _ := newTestPool(0)

			alice := scope.Scope{UserID: "alice"}
			for _, text := range []string{"one", "two", "three"} {
				Expect(wp.Enqueue(rawJob(alice, text))).To(BeTrue())
			}
			wp.Close()

			_, total, err := manager.GetAll(context.Background(), alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(3))
		})

		It("applies same-scope jobs in submission order", func() {
			wp, _, ledger := newTestPool(4)

			alice := scope.Scope{UserID: "alice"}
			texts := []string{"first", "second", "third", "fourth"}
			for _, text := range texts {
				Expect(wp.Enqueue(rawJob(alice, text))).To(BeTrue())
			}
			wp.Close()

			Expect(ledger.Records).To(HaveLen(4))
			for i, text := range texts {
				Expect(ledger.Records[i].NewValue).To(Equal(text))
				Expect(ledger.Records[i].Action).To(Equal(history.ActionAdd))
			}
		})

		It("processes jobs across scopes", func() {
			wp, manager, _ := newTestPool(4)

			scopes := []scope.Scope{
				{UserID: "alice"},
				{UserID: "bob"},
				{UserID: "carol"},
			}
			for _, sc := range scopes {
				Expect(wp.Enqueue(rawJob(sc, "hello"))).To(BeTrue())
			}
			wp.Close()

			for _, sc := range scopes {
				_, total, err := manager.GetAll(context.Background(), sc, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(1))
			}
		})
	})
})

package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/scope"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
)

func factsJSON(facts ...string) *llm.Response {
	quoted := make([]string, 0, len(facts))
	for _, f := range facts {
		quoted = append(quoted, fmt.Sprintf("%q", f))
	}

	return testutils.TextResponse(fmt.Sprintf(`{"facts": [%s]}`, strings.Join(quoted, ", ")))
}

func verdictJSON(id, text, event, oldMemory string) *llm.Response {
	return testutils.TextResponse(fmt.Sprintf(
		`{"memory": [{"id": %q, "text": %q, "event": %q, "old_memory": %q}]}`,
		id, text, event, oldMemory,
	))
}

// failingStore simulates a vector backend outage. Only Get is reachable in
// the tests that use it.
type failingStore struct {
	vector.Store
	err error
}

func (f *failingStore) Get(context.Context, string) (*vector.Record, error) {
	return nil, f.err
}

var _ = Describe("Manager", func() {
	var (
		store     *inmemory.Store
		embedder  *testutils.MockEmbedder
		ledger    *testutils.MockLedger
		publisher *testutils.MockPublisher
		ctx       context.Context
		alice     scope.Scope
	)

	BeforeEach(func() {
		store = inmemory.NewStore(logger.Nop())
		embedder = testutils.NewMockEmbedder()
		ledger = testutils.NewMockLedger()
		publisher = testutils.NewMockPublisher()
		ctx = context.Background()
		alice = scope.Scope{UserID: "alice"}
	})

	newManager := func(completer llm.Completer) *memory.Manager {
		m, err := memory.NewManager(memory.Opts{
			Completer: completer,
			Embedder:  embedder,
			Store:     store,
			Ledger:    ledger,
			Publisher: publisher,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		return m
	}

	addFact := func(m *memory.Manager, text string) memory.Mutation {
		result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: text}}, memory.AddOptions{Scope: alice})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Mutations).To(HaveLen(1))

		return result.Mutations[0]
	}

	Describe("NewManager", func() {
		It("requires the four core ports", func() {
			_, err := memory.NewManager(memory.Opts{})
			Expect(err).To(MatchError(memory.ErrNotConfigured))
		})
	})

	Describe("Add", func() {
		It("rejects an empty scope", func() {
			m := newManager(testutils.NewMockCompleter())
			_, err := m.Add(ctx, nil, memory.AddOptions{})
			Expect(err).To(MatchError(scope.ErrEmpty))
		})

		It("stores an extracted fact as a new memory", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
			))

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I like pizza"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(HaveLen(1))
			Expect(result.Mutations[0].Event).To(Equal(memory.EventAdd))
			Expect(result.Mutations[0].Memory).To(Equal("Likes pizza"))
			Expect(result.Mutations[0].ID).NotTo(BeEmpty())

			item, err := m.Get(ctx, result.Mutations[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Memory).To(Equal("Likes pizza"))
			Expect(item.State).To(Equal(vector.StateActive))
			Expect(item.UserID).To(Equal("alice"))

			Expect(ledger.Records).To(HaveLen(1))
			Expect(ledger.Records[0].Action).To(Equal(history.ActionAdd))
			Expect(ledger.Records[0].NewValue).To(Equal("Likes pizza"))
			Expect(ledger.Records[0].PreviousValue).To(BeEmpty())

			Expect(publisher.Events).To(HaveLen(1))
			Expect(publisher.Events[0].Mutation.Action).To(Equal(memory.EventAdd))
		})

		It("short-circuits a verbatim duplicate without a decision call", func() {
			completer := testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Likes pizza"),
			)
			m := newManager(completer)

			addFact(m, "I like pizza")

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I like pizza"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(BeEmpty())
			Expect(result.Skipped).To(ConsistOf(memory.SkippedItem{Text: "Likes pizza", Reason: memory.SkipReasonDuplicate}))

			// two extractions, one decision: the duplicate never reached the model
			Expect(completer.Requests).To(HaveLen(3))
			Expect(ledger.Records).To(HaveLen(1))
		})

		It("updates an existing memory on an UPDATE verdict", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Loves deep dish pizza"),
				verdictJSON("0", "Loves deep dish pizza", memory.EventUpdate, "Likes pizza"),
			))

			added := addFact(m, "I like pizza")

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "Actually I love deep dish"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(HaveLen(1))
			Expect(result.Mutations[0].Event).To(Equal(memory.EventUpdate))
			Expect(result.Mutations[0].ID).To(Equal(added.ID))
			Expect(result.Mutations[0].PreviousMemory).To(Equal("Likes pizza"))

			item, err := m.Get(ctx, added.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Memory).To(Equal("Loves deep dish pizza"))
			Expect(item.State).To(Equal(vector.StateUpdated))

			Expect(ledger.Records).To(HaveLen(2))
			Expect(ledger.Records[1].Action).To(Equal(history.ActionUpdate))
			Expect(ledger.Records[1].PreviousValue).To(Equal("Likes pizza"))
			Expect(ledger.Records[1].NewValue).To(Equal("Loves deep dish pizza"))
		})

		It("soft-deletes on a DELETE verdict", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("No longer eats pizza"),
				verdictJSON("0", "Likes pizza", memory.EventDelete, ""),
			))

			added := addFact(m, "I like pizza")

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I stopped eating pizza"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(HaveLen(1))
			Expect(result.Mutations[0].Event).To(Equal(memory.EventDelete))

			// deleted memories stay addressable for history
			item, err := m.Get(ctx, added.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.State).To(Equal(vector.StateDeleted))

			items, total, err := m.GetAll(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(0))
			Expect(items).To(BeEmpty())

			Expect(ledger.Records[1].Action).To(Equal(history.ActionDelete))
			Expect(ledger.Records[1].IsDeleted).To(BeTrue())
		})

		It("demotes a verdict with a hallucinated id to a skip", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Loves pasta"),
				verdictJSON("42", "Loves pasta", memory.EventUpdate, ""),
			))

			addFact(m, "I like pizza")

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I love pasta"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(BeEmpty())
			Expect(result.Skipped).To(ConsistOf(memory.SkippedItem{Text: "Loves pasta", Reason: memory.SkipReasonUnknownTarget}))
			Expect(ledger.Records).To(HaveLen(1))
		})

		It("reports a NONE verdict as a noop skip", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Enjoys pizza"),
				verdictJSON("", "", memory.EventNone, ""),
			))

			addFact(m, "I like pizza")

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "pizza is enjoyable"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(BeEmpty())
			Expect(result.Skipped).To(ConsistOf(memory.SkippedItem{Text: "Enjoys pizza", Reason: memory.SkipReasonNoop}))
			Expect(ledger.Records).To(HaveLen(1))
		})

		It("commits the rest of the batch when one decision fails", func() {
			var calls int
			completer := &testutils.MockCompleter{
				CompleteFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
					calls++
					switch calls {
					case 1:
						return factsJSON("Likes pizza", "Plays tennis", "Owns a dog"), nil
					case 3:
						return nil, fmt.Errorf("model timeout")
					default:
						return verdictJSON("", "", memory.EventAdd, ""), nil
					}
				},
			}
			m := newManager(completer)

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "facts about me"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(HaveLen(2))
			Expect(result.Skipped).To(ConsistOf(memory.SkippedItem{Text: "Plays tennis", Reason: memory.SkipReasonDecisionFailed}))
			Expect(ledger.Records).To(HaveLen(2))
		})

		It("returns an empty result when extraction fails", func() {
			completer := testutils.NewMockCompleter()
			completer.Err = fmt.Errorf("model unavailable")
			m := newManager(completer)

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hello"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(BeEmpty())
		})

		It("stores messages verbatim in raw mode", func() {
			completer := testutils.NewMockCompleter()
			m := newManager(completer)

			result, err := m.Add(ctx, []llm.Message{
				{Role: llm.RoleSystem, Content: "you are helpful"},
				{Role: llm.RoleUser, Content: "I like pizza"},
				{Role: llm.RoleAssistant, Content: "noted!"},
			}, memory.AddOptions{Scope: alice, Raw: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mutations).To(HaveLen(2))
			Expect(completer.Requests).To(BeEmpty())

			items, _, err := m.GetAll(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("attaches caller metadata to created memories", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
			))

			result, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I like pizza"}}, memory.AddOptions{
				Scope:    alice,
				Metadata: map[string]any{"source": "chat"},
			})
			Expect(err).NotTo(HaveOccurred())

			item, err := m.Get(ctx, result.Mutations[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Metadata).To(HaveKeyWithValue("source", "chat"))
		})
	})

	Describe("Scope isolation", func() {
		It("keeps memories of different scopes apart", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Likes pasta"),
				verdictJSON("", "Likes pasta", memory.EventAdd, ""),
			))

			_, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I like pizza"}}, memory.AddOptions{Scope: alice})
			Expect(err).NotTo(HaveOccurred())
			_, err = m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I like pasta"}}, memory.AddOptions{Scope: scope.Scope{UserID: "bob"}})
			Expect(err).NotTo(HaveOccurred())

			items, total, err := m.GetAll(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(items[0].Memory).To(Equal("Likes pizza"))
		})
	})

	Describe("Search", func() {
		It("returns scored results restricted to scope", func() {
			embedder.Embeddings["Likes pizza"] = []float32{1, 0, 0}
			embedder.Embeddings["Plays tennis"] = []float32{0, 1, 0}
			embedder.Embeddings["food"] = []float32{1, 0, 0}

			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Plays tennis"),
				verdictJSON("", "Plays tennis", memory.EventAdd, ""),
			))

			addFact(m, "I like pizza")
			addFact(m, "I play tennis")

			result, err := m.Search(ctx, "food", alice, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Items).To(HaveLen(2))
			Expect(result.Items[0].Memory).To(Equal("Likes pizza"))
			Expect(result.Items[0].Score).To(BeNumerically(">", result.Items[1].Score))
		})
	})

	Describe("Update and Delete", func() {
		It("updates a memory directly and records history", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
			))

			added := addFact(m, "I like pizza")

			mutation, err := m.Update(ctx, added.ID, "Likes margherita pizza")
			Expect(err).NotTo(HaveOccurred())
			Expect(mutation.Event).To(Equal(memory.EventUpdate))
			Expect(mutation.PreviousMemory).To(Equal("Likes pizza"))

			records, err := m.History(ctx, added.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].Action).To(Equal(history.ActionUpdate))
			Expect(records[1].Action).To(Equal(history.ActionAdd))
		})

		It("deletes a memory directly", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
			))

			added := addFact(m, "I like pizza")

			mutation, err := m.Delete(ctx, added.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(mutation.Event).To(Equal(memory.EventDelete))

			_, total, err := m.GetAll(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(0))
		})

		It("returns ErrNotFound for unknown ids", func() {
			m := newManager(testutils.NewMockCompleter())

			_, err := m.Get(ctx, "missing")
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("returns ErrNotFound when updating an unknown id", func() {
			m := newManager(testutils.NewMockCompleter())

			_, err := m.Update(ctx, "missing", "anything")
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("returns ErrNotFound when deleting an unknown id", func() {
			m := newManager(testutils.NewMockCompleter())

			_, err := m.Delete(ctx, "missing")
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("surfaces backend failures instead of reporting not found", func() {
			backendErr := errors.New("connection refused")
			m, err := memory.NewManager(memory.Opts{
				Completer: testutils.NewMockCompleter(),
				Embedder:  embedder,
				Store:     &failingStore{err: backendErr},
				Ledger:    ledger,
				Logger:    logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = m.Get(ctx, "some-id")
			Expect(err).To(MatchError(backendErr))
			Expect(errors.Is(err, memory.ErrNotFound)).To(BeFalse())
		})
	})

	Describe("DeleteAll", func() {
		It("soft-deletes every memory in scope only", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
				factsJSON("Plays tennis"),
				verdictJSON("", "Plays tennis", memory.EventAdd, ""),
				factsJSON("Likes pasta"),
				verdictJSON("", "Likes pasta", memory.EventAdd, ""),
			))

			addFact(m, "I like pizza")
			addFact(m, "I play tennis")
			bob := scope.Scope{UserID: "bob"}
			_, err := m.Add(ctx, []llm.Message{{Role: llm.RoleUser, Content: "I like pasta"}}, memory.AddOptions{Scope: bob})
			Expect(err).NotTo(HaveOccurred())

			deleted, err := m.DeleteAll(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(2))

			_, total, err := m.GetAll(ctx, alice, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(0))

			_, total, err = m.GetAll(ctx, bob, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
		})
	})

	Describe("Reset", func() {
		It("drops the collection and the ledger", func() {
			m := newManager(testutils.NewMockCompleter(
				factsJSON("Likes pizza"),
				verdictJSON("", "Likes pizza", memory.EventAdd, ""),
			))

			added := addFact(m, "I like pizza")

			Expect(m.Reset(ctx)).To(Succeed())

			_, err := m.Get(ctx, added.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))

			records, err := m.History(ctx, added.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})
})

package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/eventstream"
	"github.com/engramlabs/engram/pkg/scope"
)

var _ = Describe("Event", func() {
	It("marshals MemoryMutationEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.MemoryMutationEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeMemoryMutated,
			EventID:       "evt_123",
			EmittedAt:     now,
			Scope: scope.Scope{
				UserID: "alice",
			},
			Mutation: eventstream.MutationMeta{
				MemoryID:      "mem_1",
				Action:        "UPDATE",
				PreviousValue: "likes pizza",
				NewValue:      "loves pizza",
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("scope"))
		Expect(got).To(HaveKey("mutation"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeMemoryMutated).To(Equal("engram.memory.mutated"))
	})

	It("provides ErrNilMutationEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilMutationEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilMutationEvent).To(MatchError("nil mutation event"))
	})
})

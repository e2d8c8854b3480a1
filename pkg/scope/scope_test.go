package scope_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/scope"
)

var _ = Describe("Scope", func() {
	Describe("Validate", func() {
		It("rejects a scope with no owner", func() {
			err := scope.Scope{RunID: "session-1"}.Validate()
			Expect(err).To(MatchError(scope.ErrEmpty))
		})

		It("accepts a user-only scope", func() {
			Expect(scope.Scope{UserID: "alice"}.Validate()).To(Succeed())
		})

		It("accepts an agent-only scope", func() {
			Expect(scope.Scope{AgentID: "helper"}.Validate()).To(Succeed())
		})
	})

	Describe("Filters", func() {
		It("only includes populated fields", func() {
			f := scope.Scope{UserID: "alice", RunID: "r1"}.Filters()
			Expect(f).To(HaveLen(2))
			Expect(f).To(HaveKeyWithValue(scope.KeyUserID, "alice"))
			Expect(f).To(HaveKeyWithValue(scope.KeyRunID, "r1"))
			Expect(f).NotTo(HaveKey(scope.KeyAgentID))
		})
	})

	Describe("Key", func() {
		It("is equal for equal scopes", func() {
			a := scope.Scope{UserID: "alice", AgentID: "helper"}
			b := scope.Scope{UserID: "alice", AgentID: "helper"}
			Expect(a.Key()).To(Equal(b.Key()))
		})

		It("differs when fields shift position", func() {
			a := scope.Scope{UserID: "x"}
			b := scope.Scope{AgentID: "x"}
			Expect(a.Key()).NotTo(Equal(b.Key()))
		})
	})

	Describe("Owner", func() {
		It("prefers the user id", func() {
			s := scope.Scope{UserID: "alice", AgentID: "helper"}
			Expect(s.Owner()).To(Equal("alice"))
		})

		It("falls back to the agent id", func() {
			Expect(scope.Scope{AgentID: "helper"}.Owner()).To(Equal("helper"))
		})
	})
})

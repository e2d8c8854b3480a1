package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/llm"
)

var _ = Describe("StripCodeFences", func() {
	It("passes plain JSON through unchanged", func() {
		Expect(llm.StripCodeFences(`{"facts": []}`)).To(Equal(`{"facts": []}`))
	})

	It("removes a json fence", func() {
		in := "```json\n{\"facts\": [\"likes pizza\"]}\n```"
		Expect(llm.StripCodeFences(in)).To(Equal(`{"facts": ["likes pizza"]}`))
	})

	It("removes a bare fence", func() {
		in := "```\n{\"memory\": []}\n```"
		Expect(llm.StripCodeFences(in)).To(Equal(`{"memory": []}`))
	})

	It("keeps content that merely starts with a fence marker followed by JSON", func() {
		in := "```{\"a\":1}```"
		Expect(llm.StripCodeFences(in)).To(Equal(`{"a":1}`))
	})

	It("trims surrounding whitespace", func() {
		Expect(llm.StripCodeFences("  {\"a\":1}\n")).To(Equal(`{"a":1}`))
	})
})

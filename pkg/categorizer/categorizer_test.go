package categorizer_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/categorizer"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/logger"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
)

var _ = Describe("Categorizer", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("returns categories from the completer response", func() {
		completer := testutils.NewMockCompleter(
			testutils.TextResponse(`{"categories": ["food", "health"]}`),
		)
		c := categorizer.New(completer, categorizer.Config{}, logger.Nop())

		got, err := c.Assign(ctx, "the user likes pizza and jogs daily")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ConsistOf("food", "health"))
	})

	It("drops labels outside the vocabulary", func() {
		completer := testutils.NewMockCompleter(
			testutils.TextResponse(`{"categories": ["food", "astrology"]}`),
		)
		c := categorizer.New(completer, categorizer.Config{}, logger.Nop())

		got, err := c.Assign(ctx, "the user likes pizza")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ConsistOf("food"))
	})

	It("normalizes case and whitespace", func() {
		completer := testutils.NewMockCompleter(
			testutils.TextResponse(`{"categories": [" Food "]}`),
		)
		c := categorizer.New(completer, categorizer.Config{}, logger.Nop())

		got, err := c.Assign(ctx, "the user likes pizza")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ConsistOf("food"))
	})

	It("honors a custom vocabulary", func() {
		completer := testutils.NewMockCompleter(
			testutils.TextResponse(`{"categories": ["infra"]}`),
		)
		c := categorizer.New(completer, categorizer.Config{
			Categories: []string{"infra", "billing"},
		}, logger.Nop())

		got, err := c.Assign(ctx, "the cluster runs kubernetes")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ConsistOf("infra"))
	})

	It("handles fenced JSON responses", func() {
		completer := testutils.NewMockCompleter(
			testutils.TextResponse("```json\n{\"categories\": [\"music\"]}\n```"),
		)
		c := categorizer.New(completer, categorizer.Config{}, logger.Nop())

		got, err := c.Assign(ctx, "the user plays guitar")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ConsistOf("music"))
	})

	It("surfaces malformed responses", func() {
		completer := testutils.NewMockCompleter(
			testutils.TextResponse(`not json`),
		)
		c := categorizer.New(completer, categorizer.Config{}, logger.Nop())

		_, err := c.Assign(ctx, "the user likes pizza")
		Expect(err).To(MatchError(llm.ErrMalformedResponse))
	})
})

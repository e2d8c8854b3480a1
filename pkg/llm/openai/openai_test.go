package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/llm/openai"
)

var _ = Describe("Completer", func() {
	var (
		server   *httptest.Server
		received map[string]any
		reply    string
	)

	BeforeEach(func() {
		received = nil
		reply = `{"choices":[{"message":{"content":"{\"facts\":[]}"}}]}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/chat/completions"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(reply))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends the configured model and bearer token", func() {
		c, err := openai.NewCompleter(openai.Config{
			BaseURL: server.URL,
			Model:   "gpt-4o-mini",
			APIKey:  "sk-test",
		})
		Expect(err).NotTo(HaveOccurred())

		resp, err := c.Complete(context.Background(), &llm.Request{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			JSONMode: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Content).To(Equal(`{"facts":[]}`))

		Expect(received["model"]).To(Equal("gpt-4o-mini"))
		Expect(received["response_format"]).To(HaveKeyWithValue("type", "json_object"))
	})

	It("parses tool calls", func() {
		reply = `{"choices":[{"message":{"content":"","tool_calls":[` +
			`{"function":{"name":"noop","arguments":"{}"}}]}}]}`

		c, err := openai.NewCompleter(openai.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		resp, err := c.Complete(context.Background(), &llm.Request{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			Tools:    []llm.Tool{{Name: "noop", Parameters: map[string]any{"type": "object"}}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ToolCalls).To(HaveLen(1))
		Expect(resp.ToolCalls[0].Name).To(Equal("noop"))
	})

	It("surfaces API errors", func() {
		reply = `{"error":{"message":"invalid key","type":"auth"}}`
		server.Close()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(reply))
		}))

		c, err := openai.NewCompleter(openai.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Complete(context.Background(), &llm.Request{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		})
		Expect(err).To(MatchError(llm.ErrCompletion))
		Expect(err.Error()).To(ContainSubstring("invalid key"))
	})
})

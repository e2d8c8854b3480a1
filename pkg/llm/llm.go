// Package llm defines the completion port used for extraction and
// reconciliation decisions.
//
// The reconcilers treat the model as a black-box function: given a prompt
// and a fixed decision schema, it returns either a JSON document or a set
// of tool calls. Completer implementations live in subpackages, one per
// provider, so the core logic never depends on a concrete vendor and tests
// can substitute a deterministic stub.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function-call schema offered to the model.
// Parameters is a JSON Schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a single function call returned by the model.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Messages []Message

	// JSONMode asks the provider for a JSON-object response.
	JSONMode bool

	// Tools, when set, offers function-call schemas to the model.
	Tools []Tool

	Temperature *float64
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Completer executes completion requests against a model provider.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Close releases resources held by the completer.
	Close() error
}

// StripCodeFences removes a surrounding markdown code fence from a model
// response. Models frequently wrap JSON output in ```json fences even when
// asked not to.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// drop the language tag line
		if lang := strings.TrimSpace(s[:i]); lang == "" || !strings.ContainsAny(lang, "{}[]") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}

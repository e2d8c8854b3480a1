// Package categorizer assigns topic labels to memory text using an LLM.
package categorizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/engramlabs/engram/pkg/llm"
)

// DefaultCategories is the vocabulary used when the config does not
// provide one.
var DefaultCategories = []string{
	"personal_details",
	"family",
	"professional_details",
	"sports",
	"travel",
	"food",
	"music",
	"health",
	"technology",
	"hobbies",
	"fashion",
	"entertainment",
	"milestones",
	"user_preferences",
	"misc",
}

// Categorizer labels memory text with topic categories.
type Categorizer struct {
	completer  llm.Completer
	categories []string
	logger     *slog.Logger
}

// Config holds configuration for the categorizer.
type Config struct {
	// Categories overrides the default vocabulary when non-empty.
	Categories []string
}

// New creates a categorizer backed by the given completer.
func New(completer llm.Completer, c Config, logger *slog.Logger) *Categorizer {
	categories := c.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	return &Categorizer{
		completer:  completer,
		categories: categories,
		logger:     logger,
	}
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
}

// Assign returns the categories that apply to the given memory text.
// Labels outside the configured vocabulary are dropped.
func (c *Categorizer) Assign(ctx context.Context, text string) ([]string, error) {
	resp, err := c.completer.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: c.prompt()},
			{Role: llm.RoleUser, Content: text},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("categorizing memory: %w", err)
	}

	var parsed categoriesResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing categories: %v", llm.ErrMalformedResponse, err)
	}

	allowed := make(map[string]bool, len(c.categories))
	for _, cat := range c.categories {
		allowed[cat] = true
	}

	var out []string
	for _, cat := range parsed.Categories {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if !allowed[cat] {
			c.logger.Debug("dropping category outside vocabulary", "category", cat)
			continue
		}
		out = append(out, cat)
	}

	return out, nil
}

func (c *Categorizer) prompt() string {
	return fmt.Sprintf(`You are a categorization assistant. Assign topic categories to the memory text provided by the user.

Pick only from this list:
%s

Return a JSON object of the form {"categories": ["category1", "category2"]}. Pick every category that applies. If none apply, return {"categories": []}. Do not invent categories outside the list.`,
		"- "+strings.Join(c.categories, "\n- "))
}

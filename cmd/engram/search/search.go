// Package searchcmder provides the search command for semantic search over
// stored memories via the engram API.
package searchcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/memory"
)

var (
	rankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type searchCommander struct {
	query   string
	userID  string
	agentID string
	runID   string
	limit   int
	quiet   bool

	apiTarget string
}

const searchLongDesc string = `Search stored memories via the engram API.

Runs a semantic search within the given scope, returning the most relevant
memories for the query text. Requires a running engram server.

Use --quiet to output only memory ids, one per line, for piping into other
commands like engram history or engram delete.

Examples:
  engram search "food preferences" --user alice
  engram search "project decisions" --agent planner --top 10
  engram history $(engram search "pizza" --user alice --quiet --top 1)`

const searchShortDesc string = "Search stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("api-target") {
				return nil
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cmder.apiTarget = cfg.Client.APITarget
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			cmder.query = args[0]
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User whose memories to search")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent whose memories to search")
	cmd.Flags().StringVarP(&cmder.runID, "run", "r", "", "Run/session whose memories to search")
	cmd.Flags().IntVarP(&cmder.limit, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only memory ids, one per line (for piping)")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *searchCommander) run() error {
	output, err := SearchAPI(c.apiTarget, api.SearchMemoriesRequest{
		Query:   c.query,
		UserID:  c.userID,
		AgentID: c.agentID,
		RunID:   c.runID,
		Limit:   c.limit,
	})
	if err != nil {
		return err
	}

	if len(output.Items) == 0 {
		if !c.quiet {
			fmt.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, item := range output.Items {
			fmt.Println(item.ID)
		}
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		headerStyle.Render("Search Results for:"),
		idStyle.Render(fmt.Sprintf("%q", c.query)),
	)

	for i, item := range output.Items {
		printResult(i+1, item)
	}

	if len(output.Relations) > 0 {
		fmt.Printf("%s\n", headerStyle.Render("Related entities:"))
		for _, rel := range output.Relations {
			fmt.Printf("  %s %s %s\n",
				textStyle.Render(rel.Source),
				dimStyle.Render("--"+rel.Relation+"->"),
				textStyle.Render(rel.Target),
			)
		}
		fmt.Println()
	}

	return nil
}

func printResult(rank int, item memory.Item) {
	text := strings.ReplaceAll(item.Memory, "\n", " ")

	fmt.Printf("  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", item.Score)),
		idStyle.Render(item.ID),
	)
	fmt.Printf("     %s\n", textStyle.Render(text))

	if len(item.Categories) > 0 {
		fmt.Printf("     %s\n", dimStyle.Render(strings.Join(item.Categories, ", ")))
	}

	fmt.Println()
}

// SearchAPI calls the engram search API and returns the parsed result.
// Exported so other commands can reuse it.
func SearchAPI(apiTarget string, reqBody api.SearchMemoriesRequest) (*memory.SearchResult, error) {
	target, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = "/v1/memories/search"

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target.String(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling engram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("engram API: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("engram API returned status %d", resp.StatusCode)
	}

	var result memory.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	return &result, nil
}

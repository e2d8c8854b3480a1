// Package listcmder provides the list command for listing memories in a
// scope via the engram API.
package listcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
)

type listCommander struct {
	userID  string
	agentID string
	runID   string
	limit   int
	quiet   bool

	apiTarget string
}

const listLongDesc string = `List memories stored in a scope.

Returns every active memory for the given user, agent, or run, newest first.
Requires a running engram server.

Examples:
  engram list --user alice
  engram list --agent planner --run sprint-12
  engram list --user alice --limit 10 --quiet`

const listShortDesc string = "List memories in a scope"

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
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
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User whose memories to list")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent whose memories to list")
	cmd.Flags().StringVarP(&cmder.runID, "run", "r", "", "Run/session whose memories to list")
	cmd.Flags().IntVar(&cmder.limit, "limit", 0, "Maximum number of memories to return (0 for all)")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only memory ids, one per line (for piping)")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *listCommander) run() error {
	target, err := url.Parse(c.apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = "/v1/memories"

	q := target.Query()
	if c.userID != "" {
		q.Set("user_id", c.userID)
	}
	if c.agentID != "" {
		q.Set("agent_id", c.agentID)
	}
	if c.runID != "" {
		q.Set("run_id", c.runID)
	}
	if c.limit > 0 {
		q.Set("limit", strconv.Itoa(c.limit))
	}
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling engram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("engram API: %s", apiErr.Error)
		}
		return fmt.Errorf("engram API returned status %d", resp.StatusCode)
	}

	var body api.ListMemoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if body.Total == 0 {
		if !c.quiet {
			fmt.Println("No memories found.")
		}
		return nil
	}

	if c.quiet {
		for _, item := range body.Results {
			fmt.Println(item.ID)
		}
		return nil
	}

	fmt.Printf("\n%d memories:\n\n", body.Total)
	for _, item := range body.Results {
		fmt.Printf("  %s  %s\n",
			cliui.KeyStyle.Render(item.ID),
			cliui.ValueStyle.Render(strings.ReplaceAll(item.Memory, "\n", " ")),
		)
		if len(item.Categories) > 0 {
			fmt.Printf("  %s\n", cliui.DimStyle.Render("  "+strings.Join(item.Categories, ", ")))
		}
	}
	fmt.Println()

	return nil
}

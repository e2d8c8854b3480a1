// Package historycmder provides the history command for inspecting the
// change history of a memory via the engram API.
package historycmder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/utils"
)

type historyCommander struct {
	memoryID  string
	apiTarget string
}

const historyLongDesc string = `Show the change history of a memory.

Every ADD, UPDATE, and DELETE applied to a memory is recorded in the history
ledger. This command lists those records, most recent first.
Requires a running engram server.

Examples:
  engram history 4f8a2c10-3b7e-4d2a-9c51-8e6f0a1b2c3d`

const historyShortDesc string = "Show the change history of a memory"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history <memory-id>",
		Short: historyShortDesc,
		Long:  historyLongDesc,
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
			cmder.memoryID = args[0]
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *historyCommander) run() error {
	target, err := url.Parse(c.apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = "/v1/memories/" + c.memoryID + "/history"

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

	var body struct {
		MemoryID string           `json:"memory_id"`
		History  []history.Record `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(body.History) == 0 {
		fmt.Println("No history found.")
		return nil
	}

	fmt.Printf("\nHistory for %s:\n\n", cliui.KeyStyle.Render(c.memoryID))
	for _, record := range body.History {
		printRecord(record)
	}
	fmt.Println()

	return nil
}

func printRecord(r history.Record) {
	fmt.Printf("  %s  %s\n",
		cliui.DimStyle.Render(r.CreatedAt.Format(time.RFC3339)),
		cliui.KeyStyle.Render(r.Action),
	)

	if r.PreviousValue != "" {
		fmt.Printf("    %s %s\n",
			cliui.DimStyle.Render("-"),
			cliui.DimStyle.Render(utils.Truncate(r.PreviousValue, 80)),
		)
	}
	if r.NewValue != "" {
		fmt.Printf("    %s %s\n",
			cliui.DimStyle.Render("+"),
			cliui.ValueStyle.Render(utils.Truncate(r.NewValue, 80)),
		)
	}
}

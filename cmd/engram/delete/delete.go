// Package deletecmder provides the delete command for removing a memory or
// an entire scope via the engram API.
package deletecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
)

type deleteCommander struct {
	memoryID string
	userID   string
	agentID  string
	runID    string
	all      bool

	apiTarget string
}

const deleteLongDesc string = `Delete a memory by id, or every memory in a scope.

With a memory id argument, deletes that single memory. With --all and a scope
(--user, --agent, or --run), deletes every memory in the scope.
Requires a running engram server.

Examples:
  engram delete 4f8a2c10-3b7e-4d2a-9c51-8e6f0a1b2c3d
  engram delete --all --user alice
  engram delete --all --agent planner --run sprint-12`

const deleteShortDesc string = "Delete a memory or a whole scope"

func NewDeleteCmd() *cobra.Command {
	cmder := &deleteCommander{}

	cmd := &cobra.Command{
		Use:   "delete [memory-id]",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args:  cobra.MaximumNArgs(1),
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
			if len(args) == 1 {
				cmder.memoryID = args[0]
			}
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Delete every memory in the scope")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User whose memories to delete")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent whose memories to delete")
	cmd.Flags().StringVarP(&cmder.runID, "run", "r", "", "Run/session whose memories to delete")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *deleteCommander) run() error {
	switch {
	case c.memoryID != "" && c.all:
		return errors.New("provide either a memory id or --all, not both")
	case c.memoryID != "":
		return c.deleteOne()
	case c.all:
		return c.deleteScope()
	default:
		return errors.New("provide a memory id, or --all with a scope")
	}
}

func (c *deleteCommander) deleteOne() error {
	target, err := url.Parse(c.apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = "/v1/memories/" + c.memoryID

	if err := doDelete(target.String()); err != nil {
		return err
	}

	fmt.Printf("  %s deleted %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(c.memoryID))
	return nil
}

func (c *deleteCommander) deleteScope() error {
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
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, target.String(), nil)
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
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("  %s deleted %d memories\n", cliui.SuccessMark, body.Deleted)
	return nil
}

func doDelete(targetURL string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, targetURL, nil)
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

	return nil
}

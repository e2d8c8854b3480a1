// Package addcmder provides the add command for ingesting conversation
// messages into the memory layer via the engram API.
package addcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/memory"
)

type addCommander struct {
	userID  string
	agentID string
	runID   string
	raw     bool
	async   bool

	apiTarget string
}

const addLongDesc string = `Ingest conversation messages into the memory layer.

Each argument becomes a user message. The server extracts durable facts,
reconciles them against existing memories, and reports what changed.
Use - to read a JSON array of {"role","content"} messages from stdin instead.

Requires a running engram server.

Examples:
  engram add "I live in Berlin and work as a cartographer" --user alice
  engram add "We decided to use postgres" --agent planner --run sprint-12
  cat transcript.json | engram add - --user alice
  engram add "I moved to Munich" --user alice --async`

const addShortDesc string = "Ingest messages into memory"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <message>...",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return resolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return cmder.run(args)
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User the memories belong to")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent the memories belong to")
	cmd.Flags().StringVarP(&cmder.runID, "run", "r", "", "Run/session the memories belong to")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Store messages verbatim, skipping fact extraction")
	cmd.Flags().BoolVar(&cmder.async, "async", false, "Enqueue for background ingestion and return immediately")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

// resolveAPITarget fills target from client.api_target in config.toml unless
// the flag was set explicitly.
func resolveAPITarget(cmd *cobra.Command, target *string) error {
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

	*target = cfg.Client.APITarget
	return nil
}

func (c *addCommander) run(args []string) error {
	messages, err := buildMessages(args)
	if err != nil {
		return err
	}

	reqBody := api.AddMemoriesRequest{
		Messages: messages,
		UserID:   c.userID,
		AgentID:  c.agentID,
		RunID:    c.runID,
		Raw:      c.raw,
		Async:    c.async,
	}

	var result memory.AddResult
	status, err := postJSON(c.apiTarget, "/v1/memories", reqBody, &result)
	if err != nil {
		return err
	}

	if status == http.StatusAccepted {
		fmt.Printf("  %s queued for background ingestion\n", cliui.SuccessMark)
		return nil
	}

	if len(result.Mutations) == 0 && len(result.Skipped) == 0 {
		fmt.Println("No memories extracted.")
		return nil
	}

	for _, mutation := range result.Mutations {
		fmt.Printf("  %s %s %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(mutation.Event),
			cliui.ValueStyle.Render(mutation.Memory),
		)
	}
	for _, skipped := range result.Skipped {
		fmt.Printf("  %s %s %s\n",
			cliui.DimStyle.Render("-"),
			cliui.DimStyle.Render("skipped ("+skipped.Reason+")"),
			cliui.DimStyle.Render(skipped.Text),
		)
	}

	return nil
}

// buildMessages turns CLI args into user messages, or reads a JSON message
// array from stdin when the sole argument is "-".
func buildMessages(args []string) ([]llm.Message, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		var messages []llm.Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("parsing messages from stdin: %w", err)
		}
		return messages, nil
	}

	messages := make([]llm.Message, 0, len(args))
	for _, arg := range args {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: arg})
	}
	return messages, nil
}

// postJSON posts a JSON body to the engram API and decodes the response.
func postJSON(apiTarget, path string, body, out any) (int, error) {
	target, err := url.Parse(apiTarget)
	if err != nil {
		return 0, fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = path

	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target.String(), bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling engram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("engram API: %s", apiErr.Error)
		}
		return resp.StatusCode, fmt.Errorf("engram API returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

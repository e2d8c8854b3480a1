// Package engramcmder provides the root engram command.
package engramcmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/engramlabs/engram/cmd/engram/add"
	configcmder "github.com/engramlabs/engram/cmd/engram/config"
	deletecmder "github.com/engramlabs/engram/cmd/engram/delete"
	historycmder "github.com/engramlabs/engram/cmd/engram/history"
	initcmder "github.com/engramlabs/engram/cmd/engram/init"
	listcmder "github.com/engramlabs/engram/cmd/engram/list"
	searchcmder "github.com/engramlabs/engram/cmd/engram/search"
	servecmder "github.com/engramlabs/engram/cmd/engram/serve"
	versioncmder "github.com/engramlabs/engram/cmd/version"
)

const engramLongDesc string = `Engram is a long-term memory layer for conversational AI agents.

Run the server using:
  engram serve         Run the memory API server

Work with memories from the CLI:
  engram add           Ingest conversation messages into memory
  engram search        Semantic search over stored memories
  engram list          List memories in a scope
  engram history       Show the change history of a memory
  engram delete        Delete a memory or a whole scope`

const engramShortDesc string = "Engram - Agent Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Path to the .engram/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(deletecmder.NewDeleteCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

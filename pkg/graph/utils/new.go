// Package graphutils is the graph store utility package
package graphutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/graph/inmemory"
	"github.com/engramlabs/engram/pkg/graph/neo4j"
)

type NewStoreOpts struct {
	ProviderType string
	TargetURL    string
	Username     string
	Password     string
	Database     string
	Logger       *slog.Logger
}

func NewStore(ctx context.Context, o *NewStoreOpts) (graph.Store, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewStore(), nil
	case "neo4j":
		return neo4j.NewStore(ctx, neo4j.Config{
			URI:      o.TargetURL,
			Username: o.Username,
			Password: o.Password,
			Database: o.Database,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported graph store provider: %s", o.ProviderType)
	}
}

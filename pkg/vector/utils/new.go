// Package vectorutils is the vector store utility package
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
	"github.com/engramlabs/engram/pkg/vector/qdrant"
	"github.com/engramlabs/engram/pkg/vector/sqlitevec"
)

type NewStoreOpts struct {
	ProviderType string
	Target       string
	Collection   string
	APIKey       string
	Dimensions   uint
	Logger       *slog.Logger
}

func NewStore(ctx context.Context, o *NewStoreOpts) (vector.Store, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewStore(o.Logger), nil
	case "sqlitevec":
		return sqlitevec.NewStore(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewStore(ctx, qdrant.Config{
			Host:           o.Target,
			APIKey:         o.APIKey,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// Package historyutils is the history ledger utility package
package historyutils

import (
	"context"
	"fmt"

	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/history/inmemory"
	"github.com/engramlabs/engram/pkg/history/postgres"
	"github.com/engramlabs/engram/pkg/history/sqlite"
)

type NewLedgerOpts struct {
	ProviderType string
	Target       string
}

func NewLedger(ctx context.Context, o *NewLedgerOpts) (history.Ledger, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewLedger(), nil
	case "sqlite":
		return sqlite.NewLedger(ctx, o.Target)
	case "postgres":
		return postgres.NewLedger(ctx, o.Target)
	default:
		return nil, fmt.Errorf("unsupported history ledger provider: %s", o.ProviderType)
	}
}

package history

import "errors"

// ErrConnection is returned when the ledger backend cannot be reached.
var ErrConnection = errors.New("history ledger connection failed")

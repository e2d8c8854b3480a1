// Package sqlite provides a SQLite-backed history ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/engramlabs/engram/pkg/history"
)

// Ledger implements history.Ledger using SQLite.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a SQLite-backed ledger at the given path.
// Use ":memory:" for an in-memory database.
func NewLedger(ctx context.Context, dbPath string) (*Ledger, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", history.ErrConnection, err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			memory_id TEXT NOT NULL,
			previous_value TEXT,
			new_value TEXT,
			action TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT,
			is_deleted INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_history_memory_id ON memory_history(memory_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history index: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Append stores a record, generating an ID and timestamp when missing.
func (l *Ledger) Append(ctx context.Context, r history.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var updatedAt any
	if !r.UpdatedAt.IsZero() {
		updatedAt = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO memory_history
			(id, memory_id, previous_value, new_value, action, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.MemoryID,
		r.PreviousValue,
		r.NewValue,
		r.Action,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		updatedAt,
		boolToInt(r.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("appending history record: %w", err)
	}

	return nil
}

// Get returns all entries for a memory, most recent first.
func (l *Ledger) Get(ctx context.Context, memoryID string) ([]history.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, memory_id, previous_value, new_value, action, created_at, updated_at, is_deleted
		FROM memory_history
		WHERE memory_id = ?
		ORDER BY seq DESC
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var (
			r         history.Record
			prev      sql.NullString
			next      sql.NullString
			createdAt string
			updatedAt sql.NullString
			deleted   int
		)
		if err := rows.Scan(&r.ID, &r.MemoryID, &prev, &next, &r.Action, &createdAt, &updatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scanning history record: %w", err)
		}

		r.PreviousValue = prev.String
		r.NewValue = next.String
		r.IsDeleted = deleted != 0

		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		if updatedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
				r.UpdatedAt = t
			}
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history records: %w", err)
	}

	return records, nil
}

// Reset removes all entries.
func (l *Ledger) Reset(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM memory_history`); err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

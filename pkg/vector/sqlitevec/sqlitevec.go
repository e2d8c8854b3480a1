// Package sqlitevec provides a SQLite-backed vector store using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/engramlabs/engram/pkg/vector"
)

// DefaultListLimit caps List results when the caller passes 0.
const DefaultListLimit = 100

// knnOverfetch multiplies the KNN k so that scope filtering applied after
// the vector match still yields enough rows.
const knnOverfetch = 4

// Store implements vector.Store using SQLite with sqlite-vec.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Config holds configuration for the SQLite vec store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewStore creates a new SQLite vector store backed by sqlite-vec.
func NewStore(c Config, logger *slog.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// The payload table maps string record IDs to integer rowids (vec0
	// virtual tables use integer rowids) and carries the memory payload.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL UNIQUE,
			data TEXT NOT NULL,
			hash TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'active',
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			categories TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memories table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(user_id, agent_id, run_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating scope index: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector store initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func marshalPayloadColumns(p vector.Payload) (categories, metadata, createdAt string, updatedAt sql.NullString, err error) {
	cats := p.Categories
	if cats == nil {
		cats = []string{}
	}
	catBytes, err := json.Marshal(cats)
	if err != nil {
		return "", "", "", sql.NullString{}, fmt.Errorf("marshaling categories: %w", err)
	}

	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", "", "", sql.NullString{}, fmt.Errorf("marshaling metadata: %w", err)
	}

	createdAt = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	if !p.UpdatedAt.IsZero() {
		updatedAt = sql.NullString{String: p.UpdatedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	return string(catBytes), string(metaBytes), createdAt, updatedAt, nil
}

// upsertTx writes one record inside tx, replacing any existing row with the
// same record ID. vec0 does not support UPDATE, so embedding replacement is
// a DELETE + INSERT against the matching rowid.
func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, r vector.Record) error {
	state := r.Payload.State
	if state == "" {
		state = vector.StateActive
	}

	categories, metadata, createdAt, updatedAt, err := marshalPayloadColumns(r.Payload)
	if err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}

	embBlob := serializeFloat32(r.Embedding)

	var existingRowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM memories WHERE record_id = ?`, r.ID,
	).Scan(&existingRowID)

	switch err {
	case nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET data = ?, hash = ?, state = ?, user_id = ?, agent_id = ?, run_id = ?,
				categories = ?, metadata = ?, created_at = ?, updated_at = ? WHERE rowid = ?`,
			r.Payload.Data, r.Payload.Hash, state,
			r.Payload.UserID, r.Payload.AgentID, r.Payload.RunID,
			categories, metadata, createdAt, updatedAt, existingRowID,
		); err != nil {
			return fmt.Errorf("updating record %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_embeddings WHERE rowid = ?`, existingRowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding for record %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			existingRowID, embBlob,
		); err != nil {
			return fmt.Errorf("re-inserting embedding for record %s: %w", r.ID, err)
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			`INSERT INTO memories(record_id, data, hash, state, user_id, agent_id, run_id, categories, metadata, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Payload.Data, r.Payload.Hash, state,
			r.Payload.UserID, r.Payload.AgentID, r.Payload.RunID,
			categories, metadata, createdAt, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for record %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, embBlob,
		); err != nil {
			return fmt.Errorf("inserting embedding for record %s: %w", r.ID, err)
		}
	default:
		return fmt.Errorf("checking for existing record %s: %w", r.ID, err)
	}

	return nil
}

// Insert stores records with their embeddings, replacing existing IDs.
func (s *Store) Insert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := s.upsertTx(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("inserted records into sqlite-vec", "count", len(records))

	return nil
}

// filterClause builds the SQL conditions for an equality filter set against
// the memories table (aliased m). Scope keys and hash hit dedicated
// columns; other keys match the metadata JSON via json_extract.
func filterClause(filters map[string]string) (string, []any) {
	var conds []string
	var args []any

	for k, v := range filters {
		switch k {
		case "user_id", "agent_id", "run_id", "hash":
			conds = append(conds, fmt.Sprintf("m.%s = ?", k))
			args = append(args, v)
		default:
			conds = append(conds, "json_extract(m.metadata, ?) = ?")
			args = append(args, "$."+k, v)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// Search finds the limit most similar non-deleted records restricted by
// filters. The KNN over-fetches because scope filtering happens after the
// vector match.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]vector.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	clause, filterArgs := filterClause(filters)

	query := `
		SELECT m.record_id, m.data, m.hash, m.state, m.user_id, m.agent_id, m.run_id,
			m.categories, m.metadata, m.created_at, m.updated_at, ve.distance
		FROM memory_embeddings ve
		INNER JOIN memories m ON m.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
			AND m.state != ?` + clause + `
		ORDER BY ve.distance
		LIMIT ?`

	args := []any{serializeFloat32(embedding), limit * knnOverfetch, vector.StateDeleted}
	args = append(args, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.SearchResult
	for rows.Next() {
		var r vector.Record
		var distance float64
		if err := scanPayload(rows, &r, &distance); err != nil {
			return nil, err
		}

		results = append(results, vector.SearchResult{
			Record: r,
			// Convert distance to similarity score: lower distance = higher similarity
			Score: float32(1.0 / (1.0 + distance)),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	s.logger.Debug("queried sqlite-vec", "results", len(results))

	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanPayload scans the memories columns into a record; distance is nil for
// non-KNN queries.
func scanPayload(row rowScanner, r *vector.Record, distance *float64) error {
	var categories, metadata, createdAt string
	var updatedAt sql.NullString

	dest := []any{
		&r.ID, &r.Payload.Data, &r.Payload.Hash, &r.Payload.State,
		&r.Payload.UserID, &r.Payload.AgentID, &r.Payload.RunID,
		&categories, &metadata, &createdAt, &updatedAt,
	}
	if distance != nil {
		dest = append(dest, distance)
	}

	if err := row.Scan(dest...); err != nil {
		return fmt.Errorf("scanning record: %w", err)
	}

	if err := json.Unmarshal([]byte(categories), &r.Payload.Categories); err != nil {
		return fmt.Errorf("parsing categories: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &r.Payload.Metadata); err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	r.Payload.CreatedAt = created

	if updatedAt.Valid {
		updated, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return fmt.Errorf("parsing updated_at: %w", err)
		}
		r.Payload.UpdatedAt = updated
	}

	return nil
}

// Get retrieves a record by ID regardless of state.
func (s *Store) Get(ctx context.Context, id string) (*vector.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.record_id, m.data, m.hash, m.state, m.user_id, m.agent_id, m.run_id,
			m.categories, m.metadata, m.created_at, m.updated_at, m.rowid
		FROM memories m
		WHERE m.record_id = ?
	`, id)

	var r vector.Record
	var categories, metadata, createdAt string
	var updatedAt sql.NullString
	var rowID int64

	err := row.Scan(
		&r.ID, &r.Payload.Data, &r.Payload.Hash, &r.Payload.State,
		&r.Payload.UserID, &r.Payload.AgentID, &r.Payload.RunID,
		&categories, &metadata, &createdAt, &updatedAt, &rowID,
	)
	if err == sql.ErrNoRows {
		return nil, vector.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	if err := json.Unmarshal([]byte(categories), &r.Payload.Categories); err != nil {
		return nil, fmt.Errorf("parsing categories: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &r.Payload.Metadata); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	r.Payload.CreatedAt = created

	if updatedAt.Valid {
		updated, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		r.Payload.UpdatedAt = updated
	}

	var embBlob []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT embedding FROM memory_embeddings WHERE rowid = ?`, rowID,
	).Scan(&embBlob)
	if err == nil && len(embBlob) > 0 {
		r.Embedding, _ = deserializeFloat32(embBlob)
	}

	return &r, nil
}

// Update replaces a record's embedding and payload by ID.
func (s *Store) Update(ctx context.Context, record vector.Record) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM memories WHERE record_id = ?`, record.ID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return vector.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking record %s: %w", record.ID, err)
	}

	return s.Insert(ctx, []vector.Record{record})
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var rowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM memories WHERE record_id = ?`, id,
	).Scan(&rowID)
	if err == sql.ErrNoRows {
		return vector.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying rowid for deletion: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_embeddings WHERE rowid = ?`, rowID,
	); err != nil {
		return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memories WHERE rowid = ?`, rowID,
	); err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("deleted record from sqlite-vec", "record_id", id)

	return nil
}

// List returns non-deleted records matching the filters, newest first.
func (s *Store) List(ctx context.Context, filters map[string]string, limit int) ([]vector.Record, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	clause, filterArgs := filterClause(filters)

	countQuery := `SELECT COUNT(*) FROM memories m WHERE m.state != ?` + clause
	countArgs := append([]any{vector.StateDeleted}, filterArgs...)

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting records: %w", err)
	}

	query := `
		SELECT m.record_id, m.data, m.hash, m.state, m.user_id, m.agent_id, m.run_id,
			m.categories, m.metadata, m.created_at, m.updated_at
		FROM memories m
		WHERE m.state != ?` + clause + `
		ORDER BY m.created_at DESC
		LIMIT ?`

	args := append([]any{vector.StateDeleted}, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []vector.Record
	for rows.Next() {
		var r vector.Record
		if err := scanPayload(rows, &r, nil); err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating records: %w", err)
	}

	return records, total, nil
}

// DeleteCollection drops every record and embedding.
func (s *Store) DeleteCollection(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_embeddings`); err != nil {
		return fmt.Errorf("clearing embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("clearing memories: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ vector.Store = (*Store)(nil)

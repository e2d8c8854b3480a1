// Package qdrant provides a Qdrant-backed implementation of vector.Store.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/engramlabs/engram/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection for memory records.
	DefaultCollectionName = "engram"

	// DefaultListLimit caps List results when the caller passes 0.
	DefaultListLimit = 100
)

// Store implements vector.Store using Qdrant's gRPC API.
type Store struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// Config holds configuration for the Qdrant store.
type Config struct {
	// Host is the Qdrant host (e.g., "localhost").
	Host string

	// Port is the gRPC port. Defaults to 6334.
	Port int

	// APIKey enables authenticated access when set.
	APIKey string

	// UseTLS enables TLS for the connection.
	UseTLS bool

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// Dimensions is the embedding dimensionality for the collection.
	Dimensions uint
}

// NewStore connects to Qdrant and ensures the collection exists.
func NewStore(ctx context.Context, c Config, logger *slog.Logger) (*Store, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to qdrant",
		"host", c.Host,
		"collection", collection,
		"dimensions", c.Dimensions,
	)

	return &Store{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

func payloadToValueMap(p vector.Payload) map[string]*qdrant.Value {
	state := p.State
	if state == "" {
		state = vector.StateActive
	}

	m := map[string]any{
		"data":       p.Data,
		"hash":       p.Hash,
		"state":      state,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if p.UserID != "" {
		m["user_id"] = p.UserID
	}
	if p.AgentID != "" {
		m["agent_id"] = p.AgentID
	}
	if p.RunID != "" {
		m["run_id"] = p.RunID
	}
	if !p.UpdatedAt.IsZero() {
		m["updated_at"] = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(p.Categories) > 0 {
		cats := make([]any, len(p.Categories))
		for i, c := range p.Categories {
			cats[i] = c
		}
		m["categories"] = cats
	}
	if len(p.Metadata) > 0 {
		m["metadata"] = p.Metadata
	}

	return qdrant.NewValueMap(m)
}

func valueMapToPayload(fields map[string]*qdrant.Value) vector.Payload {
	p := vector.Payload{}

	getString := func(key string) string {
		if v, ok := fields[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	p.Data = getString("data")
	p.Hash = getString("hash")
	p.State = getString("state")
	p.UserID = getString("user_id")
	p.AgentID = getString("agent_id")
	p.RunID = getString("run_id")

	if ts := getString("created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.CreatedAt = t
		}
	}
	if ts := getString("updated_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.UpdatedAt = t
		}
	}

	if v, ok := fields["categories"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			if s := item.GetStringValue(); s != "" {
				p.Categories = append(p.Categories, s)
			}
		}
	}

	if v, ok := fields["metadata"]; ok {
		if s := v.GetStructValue(); s != nil {
			p.Metadata = make(map[string]any, len(s.GetFields()))
			for k, f := range s.GetFields() {
				p.Metadata[k] = flattenValue(f)
			}
		}
	}

	return p
}

func flattenValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

// buildFilter converts an equality filter set to a Qdrant filter that also
// excludes deleted records.
func buildFilter(filters map[string]string) *qdrant.Filter {
	f := &qdrant.Filter{
		MustNot: []*qdrant.Condition{
			qdrant.NewMatch("state", vector.StateDeleted),
		},
	}

	for k, v := range filters {
		key := k
		switch k {
		case "user_id", "agent_id", "run_id", "hash":
		default:
			key = "metadata." + k
		}
		f.Must = append(f.Must, qdrant.NewMatch(key, v))
	}

	return f
}

// Insert upserts records into the collection.
func (s *Store) Insert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: payloadToValueMap(r.Payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	s.logger.Debug("inserted records into qdrant", "count", len(records))

	return nil
}

// Search runs a similarity query restricted by filters.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]vector.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         buildFilter(filters),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.SearchResult{
			Record: vector.Record{
				ID:      p.GetId().GetUuid(),
				Payload: valueMapToPayload(p.GetPayload()),
			},
			Score: p.GetScore(),
		})
	}

	return results, nil
}

// Get retrieves a record by ID regardless of state.
func (s *Store) Get(ctx context.Context, id string) (*vector.Record, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting point %s: %w", id, err)
	}

	if len(points) == 0 {
		return nil, vector.ErrNotFound
	}

	p := points[0]
	r := &vector.Record{
		ID:      p.GetId().GetUuid(),
		Payload: valueMapToPayload(p.GetPayload()),
	}
	if v := p.GetVectors().GetVector(); v != nil {
		r.Embedding = v.GetData()
	}

	return r, nil
}

// Update replaces a record by ID via upsert.
func (s *Store) Update(ctx context.Context, record vector.Record) error {
	return s.Insert(ctx, []vector.Record{record})
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("deleting point %s: %w", id, err)
	}

	return nil
}

// List scrolls records matching the filters.
func (s *Store) List(ctx context.Context, filters map[string]string, limit int) ([]vector.Record, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	filter := buildFilter(filters)

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("counting points: %w", err)
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scrolling points: %w", err)
	}

	records := make([]vector.Record, 0, len(points))
	for _, p := range points {
		records = append(records, vector.Record{
			ID:      p.GetId().GetUuid(),
			Payload: valueMapToPayload(p.GetPayload()),
		})
	}

	return records, int(count), nil
}

// DeleteCollection drops the whole collection.
func (s *Store) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("deleting collection %q: %w", s.collection, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ vector.Store = (*Store)(nil)

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram/pkg/categorizer"
	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/eventstream"
	"github.com/engramlabs/engram/pkg/eventstream/nop"
	"github.com/engramlabs/engram/pkg/graph"
	"github.com/engramlabs/engram/pkg/history"
	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/scope"
	"github.com/engramlabs/engram/pkg/vector"
)

const (
	// DefaultTopK bounds the candidate set retrieved for each decision.
	DefaultTopK = 5

	// DefaultCallTimeout bounds each external port call.
	DefaultCallTimeout = 30 * time.Second
)

// Config holds tunables for the manager.
type Config struct {
	// TopK overrides DefaultTopK when > 0.
	TopK int

	// CallTimeout overrides DefaultCallTimeout when > 0.
	CallTimeout time.Duration

	// CustomFactExtractionPrompt replaces the built-in extraction prompt.
	CustomFactExtractionPrompt string
}

// Opts wires the manager's collaborators. Completer, Embedder, Store and
// Ledger are required; the rest are optional.
type Opts struct {
	Completer   llm.Completer
	Embedder    embeddings.Embedder
	Store       vector.Store
	Ledger      history.Ledger
	Graph       *graph.Reconciler
	Categorizer *categorizer.Categorizer
	Publisher   eventstream.Publisher
	Config      Config
	Logger      *slog.Logger
}

// Manager is the public entry point for storing and retrieving memories.
type Manager struct {
	completer   llm.Completer
	embedder    embeddings.Embedder
	store       vector.Store
	ledger      history.Ledger
	graph       *graph.Reconciler
	categorizer *categorizer.Categorizer
	publisher   eventstream.Publisher
	logger      *slog.Logger

	topK        int
	callTimeout time.Duration
	factPrompt  string
}

// NewManager validates the wiring and returns a manager.
func NewManager(o Opts) (*Manager, error) {
	if o.Completer == nil || o.Embedder == nil || o.Store == nil || o.Ledger == nil {
		return nil, fmt.Errorf("%w: completer, embedder, store and ledger are required", ErrNotConfigured)
	}

	topK := o.Config.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	callTimeout := o.Config.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	publisher := o.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	log := o.Logger
	if log == nil {
		log = logger.Nop()
	}

	factPrompt := o.Config.CustomFactExtractionPrompt
	if factPrompt == "" {
		factPrompt = factExtractionPrompt()
	}

	return &Manager{
		completer:   o.Completer,
		embedder:    o.Embedder,
		store:       o.Store,
		ledger:      o.Ledger,
		graph:       o.Graph,
		categorizer: o.Categorizer,
		publisher:   publisher,
		logger:      log,
		topK:        topK,
		callTimeout: callTimeout,
		factPrompt:  factPrompt,
	}, nil
}

// Add ingests a batch of messages: facts are extracted and reconciled one
// at a time so each mutation is visible to the next fact's retrieval. The
// graph reconciler, when wired, runs concurrently over the same input and
// its failures never affect the vector-store outcome.
func (m *Manager) Add(ctx context.Context, messages []llm.Message, opts AddOptions) (*AddResult, error) {
	if err := opts.Scope.Validate(); err != nil {
		return nil, err
	}

	result := &AddResult{}

	var wg sync.WaitGroup
	if m.graph != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mutations, err := m.graph.Add(ctx, flattenMessages(messages), opts.Scope)
			if err != nil {
				m.logger.Warn("graph reconciliation failed", "error", err)
				return
			}
			result.Relations = mutations
		}()
	}

	if opts.Raw {
		m.addRaw(ctx, messages, opts, result)
	} else {
		m.addInferred(ctx, messages, opts, result)
	}

	wg.Wait()

	return result, nil
}

// addRaw stores each non-system message verbatim, without reconciliation.
func (m *Manager) addRaw(ctx context.Context, messages []llm.Message, opts AddOptions, result *AddResult) {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem || msg.Content == "" {
			continue
		}

		metadata := mergeMetadata(opts.Metadata, map[string]any{"role": msg.Role})
		mutation, err := m.createMemory(ctx, msg.Content, opts.Scope, metadata)
		if err != nil {
			m.logger.Warn("storing raw message", "error", err)
			result.Skipped = append(result.Skipped, SkippedItem{Text: msg.Content, Reason: SkipReasonStoreFailed})
			continue
		}

		result.Mutations = append(result.Mutations, *mutation)
	}
}

func (m *Manager) addInferred(ctx context.Context, messages []llm.Message, opts AddOptions, result *AddResult) {
	facts, err := m.extractFacts(ctx, messages)
	if err != nil {
		// an unusable extraction yields an empty batch, not a failure
		m.logger.Error("fact extraction failed", "error", err)
		return
	}

	for _, fact := range facts {
		m.reconcileFact(ctx, fact, opts, result)
	}
}

type factsResponse struct {
	Facts []string `json:"facts"`
}

func (m *Manager) extractFacts(ctx context.Context, messages []llm.Message) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	resp, err := m.completer.Complete(callCtx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: m.factPrompt},
			{Role: llm.RoleUser, Content: "Input:\n" + flattenMessages(messages)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting facts: %w", err)
	}

	var parsed factsResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing facts: %v", llm.ErrMalformedResponse, err)
	}

	return parsed.Facts, nil
}

type decisionResponse struct {
	Memory []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		Event     string `json:"event"`
		OldMemory string `json:"old_memory"`
	} `json:"memory"`
}

// reconcileFact turns one candidate fact into at most one store mutation.
// Failures skip the fact and leave the rest of the batch untouched.
func (m *Manager) reconcileFact(ctx context.Context, fact string, opts AddOptions, result *AddResult) {
	skip := func(reason string) {
		result.Skipped = append(result.Skipped, SkippedItem{Text: fact, Reason: reason})
	}

	// verbatim duplicate short-circuit, no decision call needed
	hashFilters := opts.Scope.Filters()
	hashFilters["hash"] = contentHash(fact)
	existing, _, err := m.store.List(ctx, hashFilters, 1)
	if err != nil {
		m.logger.Warn("duplicate check failed", "fact", fact, "error", err)
		skip(SkipReasonStoreFailed)
		return
	}
	if len(existing) > 0 {
		m.logger.Debug("fact already known verbatim", "fact", fact)
		skip(SkipReasonDuplicate)
		return
	}

	embedding, err := m.embed(ctx, fact)
	if err != nil {
		m.logger.Warn("embedding fact failed", "fact", fact, "error", err)
		skip(SkipReasonEmbeddingFailed)
		return
	}

	hits, err := m.store.Search(ctx, embedding, m.topK, opts.Scope.Filters())
	if err != nil {
		m.logger.Warn("candidate search failed", "fact", fact, "error", err)
		skip(SkipReasonStoreFailed)
		return
	}

	// candidates are presented with small integer ids so a hallucinated
	// identifier can never address a real memory
	aliases := make(map[string]string, len(hits))
	candidates := make([]decisionCandidate, 0, len(hits))
	for idx, hit := range hits {
		alias := strconv.Itoa(idx)
		aliases[alias] = hit.ID
		candidates = append(candidates, decisionCandidate{ID: alias, Text: hit.Payload.Data})
	}

	verdict, err := m.decide(ctx, fact, candidates)
	if err != nil {
		m.logger.Warn("decision failed", "fact", fact, "error", err)
		skip(SkipReasonDecisionFailed)
		return
	}
	if verdict == nil || verdict.Event == EventNone {
		skip(SkipReasonNoop)
		return
	}

	text := verdict.Text
	if text == "" {
		text = fact
	}

	switch verdict.Event {
	case EventAdd:
		mutation, err := m.createMemory(ctx, text, opts.Scope, opts.Metadata)
		if err != nil {
			m.logger.Warn("applying ADD failed", "fact", fact, "error", err)
			skip(SkipReasonStoreFailed)
			return
		}
		result.Mutations = append(result.Mutations, *mutation)

	case EventUpdate, EventDelete:
		targetID, ok := aliases[verdict.ID]
		if !ok {
			m.logger.Warn("verdict references unknown memory id", "fact", fact, "id", verdict.ID)
			skip(SkipReasonUnknownTarget)
			return
		}

		var (
			mutation *Mutation
			applyErr error
		)
		if verdict.Event == EventUpdate {
			mutation, applyErr = m.updateMemory(ctx, targetID, text, opts.Metadata)
		} else {
			mutation, applyErr = m.deleteMemory(ctx, targetID)
		}
		if applyErr != nil {
			m.logger.Warn("applying verdict failed", "fact", fact, "event", verdict.Event, "error", applyErr)
			skip(SkipReasonStoreFailed)
			return
		}
		result.Mutations = append(result.Mutations, *mutation)

	default:
		m.logger.Warn("unknown verdict event", "fact", fact, "event", verdict.Event)
		skip(SkipReasonDecisionFailed)
	}
}

type verdict struct {
	ID    string
	Text  string
	Event string
}

func (m *Manager) decide(ctx context.Context, fact string, candidates []decisionCandidate) (*verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	resp, err := m.completer.Complete(callCtx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: updateDecisionPrompt(fact, candidates)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("decision call: %w", err)
	}

	var parsed decisionResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing decision: %v", llm.ErrMalformedResponse, err)
	}

	// no candidates means nothing to update or delete
	if len(candidates) == 0 {
		if len(parsed.Memory) == 0 {
			return &verdict{Text: fact, Event: EventAdd}, nil
		}
		entry := parsed.Memory[0]
		if entry.Event != EventAdd && entry.Event != EventNone {
			return &verdict{Text: fact, Event: EventAdd}, nil
		}
	}

	if len(parsed.Memory) == 0 {
		return &verdict{Event: EventNone}, nil
	}

	entry := parsed.Memory[0]

	return &verdict{ID: entry.ID, Text: entry.Text, Event: entry.Event}, nil
}

func (m *Manager) createMemory(ctx context.Context, text string, sc scope.Scope, metadata map[string]any) (*Mutation, error) {
	embedding, err := m.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}

	now := time.Now().UTC()
	record := vector.Record{
		ID:        uuid.NewString(),
		Embedding: embedding,
		Payload: vector.Payload{
			Data:       text,
			Hash:       contentHash(text),
			State:      vector.StateActive,
			UserID:     sc.UserID,
			AgentID:    sc.AgentID,
			RunID:      sc.RunID,
			Categories: m.categorize(ctx, text),
			Metadata:   metadata,
			CreatedAt:  now,
		},
	}

	if err := m.store.Insert(ctx, []vector.Record{record}); err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}

	m.recordHistory(ctx, history.Record{
		MemoryID:  record.ID,
		NewValue:  text,
		Action:    history.ActionAdd,
		CreatedAt: now,
	})

	mutation := &Mutation{ID: record.ID, Memory: text, Event: EventAdd}
	m.publish(ctx, sc, mutation)

	return mutation, nil
}

func (m *Manager) updateMemory(ctx context.Context, id, text string, metadata map[string]any) (*Mutation, error) {
	record, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	embedding, err := m.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}

	previous := record.Payload.Data
	now := time.Now().UTC()

	record.Embedding = embedding
	record.Payload.Data = text
	record.Payload.Hash = contentHash(text)
	record.Payload.State = vector.StateUpdated
	record.Payload.Metadata = mergeMetadata(record.Payload.Metadata, metadata)
	record.Payload.UpdatedAt = now

	if err := m.store.Update(ctx, *record); err != nil {
		return nil, fmt.Errorf("updating memory %s: %w", id, err)
	}

	m.recordHistory(ctx, history.Record{
		MemoryID:      id,
		PreviousValue: previous,
		NewValue:      text,
		Action:        history.ActionUpdate,
		CreatedAt:     now,
		UpdatedAt:     now,
	})

	mutation := &Mutation{ID: id, Memory: text, PreviousMemory: previous, Event: EventUpdate}
	m.publish(ctx, scopeOf(record.Payload), mutation)

	return mutation, nil
}

func (m *Manager) deleteMemory(ctx context.Context, id string) (*Mutation, error) {
	record, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := record.Payload.Data
	now := time.Now().UTC()

	// soft delete keeps the record addressable for history
	record.Payload.State = vector.StateDeleted
	record.Payload.UpdatedAt = now

	if err := m.store.Update(ctx, *record); err != nil {
		return nil, fmt.Errorf("deleting memory %s: %w", id, err)
	}

	m.recordHistory(ctx, history.Record{
		MemoryID:      id,
		PreviousValue: previous,
		Action:        history.ActionDelete,
		CreatedAt:     now,
		IsDeleted:     true,
	})

	mutation := &Mutation{ID: id, Memory: previous, Event: EventDelete}
	m.publish(ctx, scopeOf(record.Payload), mutation)

	return mutation, nil
}

// fetch reads a record by id, translating the store's not-found error so
// a missing memory is distinguishable from a backend failure.
func (m *Manager) fetch(ctx context.Context, id string) (*vector.Record, error) {
	record, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vector.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching memory %s: %w", id, err)
	}

	return record, nil
}

// Get returns a memory by id, regardless of its state.
func (m *Manager) Get(ctx context.Context, id string) (*Item, error) {
	record, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	item := toItem(*record, 0)

	return &item, nil
}

// GetAll lists non-deleted memories in scope, newest first.
func (m *Manager) GetAll(ctx context.Context, sc scope.Scope, limit int) ([]Item, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}

	records, total, err := m.store.List(ctx, sc.Filters(), limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing memories: %w", err)
	}

	items := make([]Item, 0, len(records))
	for _, record := range records {
		items = append(items, toItem(record, 0))
	}

	return items, total, nil
}

// Search embeds the query and returns the most similar memories in scope,
// plus matching graph triples when graph mode is enabled.
func (m *Manager) Search(ctx context.Context, query string, sc scope.Scope, limit int) (*SearchResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.topK
	}

	embedding, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := m.store.Search(ctx, embedding, limit, sc.Filters())
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}

	result := &SearchResult{Items: make([]Item, 0, len(hits))}
	for _, hit := range hits {
		result.Items = append(result.Items, toItem(hit.Record, hit.Score))
	}

	if m.graph != nil {
		relations, err := m.graph.Search(ctx, query, sc, limit)
		if err != nil {
			m.logger.Warn("graph search failed", "error", err)
		} else {
			result.Relations = relations
		}
	}

	return result, nil
}

// Update replaces a memory's text directly, outside reconciliation.
func (m *Manager) Update(ctx context.Context, id, text string) (*Mutation, error) {
	mutation, err := m.updateMemory(ctx, id, text, nil)
	if err != nil {
		return nil, err
	}

	return mutation, nil
}

// Delete soft-deletes a memory by id.
func (m *Manager) Delete(ctx context.Context, id string) (*Mutation, error) {
	return m.deleteMemory(ctx, id)
}

// DeleteAll soft-deletes every memory in scope and, when graph mode is
// enabled, clears the scope's graph.
func (m *Manager) DeleteAll(ctx context.Context, sc scope.Scope) (int, error) {
	if err := sc.Validate(); err != nil {
		return 0, err
	}

	var deleted int
	for {
		records, _, err := m.store.List(ctx, sc.Filters(), 0)
		if err != nil {
			return deleted, fmt.Errorf("listing memories: %w", err)
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			if _, err := m.deleteMemory(ctx, record.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}

	if m.graph != nil {
		if err := m.graph.DeleteAll(ctx, sc); err != nil {
			m.logger.Warn("clearing graph scope failed", "error", err)
		}
	}

	return deleted, nil
}

// History returns the ledger entries for a memory, most recent first.
func (m *Manager) History(ctx context.Context, memoryID string) ([]history.Record, error) {
	return m.ledger.Get(ctx, memoryID)
}

// Reset drops the vector collection and the history ledger.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("dropping collection: %w", err)
	}

	if err := m.ledger.Reset(ctx); err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}

	return nil
}

// Close releases the manager's collaborators.
func (m *Manager) Close() error {
	var firstErr error
	for _, closer := range []func() error{
		m.completer.Close,
		m.embedder.Close,
		m.store.Close,
		m.ledger.Close,
		m.publisher.Close,
	} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	return m.embedder.Embed(callCtx, text)
}

// categorize labels the text when a categorizer is wired; failures drop
// the labels, never the memory.
func (m *Manager) categorize(ctx context.Context, text string) []string {
	if m.categorizer == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	categories, err := m.categorizer.Assign(callCtx, text)
	if err != nil {
		m.logger.Warn("categorization failed", "error", err)
		return nil
	}

	return categories
}

// recordHistory appends to the ledger; a ledger failure is logged and does
// not undo the applied mutation.
func (m *Manager) recordHistory(ctx context.Context, r history.Record) {
	if err := m.ledger.Append(ctx, r); err != nil {
		m.logger.Error("appending history record", "memory_id", r.MemoryID, "error", err)
	}
}

func (m *Manager) publish(ctx context.Context, sc scope.Scope, mutation *Mutation) {
	event := &eventstream.MemoryMutationEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeMemoryMutated,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Scope:         sc,
		Mutation: eventstream.MutationMeta{
			MemoryID:      mutation.ID,
			Action:        mutation.Event,
			PreviousValue: mutation.PreviousMemory,
			NewValue:      mutation.Memory,
		},
	}

	if err := m.publisher.PublishMutation(ctx, event); err != nil {
		m.logger.Warn("publishing mutation event", "memory_id", mutation.ID, "error", err)
	}
}

func toItem(record vector.Record, score float32) Item {
	return Item{
		ID:         record.ID,
		Memory:     record.Payload.Data,
		Hash:       record.Payload.Hash,
		Score:      score,
		State:      record.Payload.State,
		UserID:     record.Payload.UserID,
		AgentID:    record.Payload.AgentID,
		RunID:      record.Payload.RunID,
		Categories: record.Payload.Categories,
		Metadata:   record.Payload.Metadata,
		CreatedAt:  record.Payload.CreatedAt,
		UpdatedAt:  record.Payload.UpdatedAt,
	}
}

func scopeOf(p vector.Payload) scope.Scope {
	return scope.Scope{UserID: p.UserID, AgentID: p.AgentID, RunID: p.RunID}
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}

	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	return merged
}

func flattenMessages(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}

	return sb.String()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

// knowledgeFields is the field set requested on every Knowledge query.
var knowledgeFields = []graphql.Field{
	{Name: "content"},
	{Name: "source"},
	{Name: "timestamp"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "id"},
		{Name: "distance"},
	}},
}

// ScoredKnowledge is one knowledge document returned from a query.
type ScoredKnowledge struct {
	ID       string
	Content  string
	Source   string
	Distance *float32
}

// KnowledgeStore holds the knowledge base: reference documents searched
// by similarity on every turn and injected into the generation context.
// Separate from the interaction log; documents are never created by
// conversation, only ingested.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type KnowledgeStore interface {
	// Insert adds one document and returns its generated UUID. A zero
	// props.Timestamp is stamped with the current time.
	Insert(ctx context.Context, props datatypes.KnowledgeProperties) (string, error)

	// QueryNearest retrieves up to limit documents ranked by cosine
	// distance to the embedding of the given text, ascending.
	QueryNearest(ctx context.Context, text string, limit int) ([]ScoredKnowledge, error)
}

// =============================================================================
// Weaviate Implementation
// =============================================================================

// WeaviateKnowledgeStore implements KnowledgeStore using the Knowledge
// class. Content embeddings are computed externally, same as the
// interaction store.
type WeaviateKnowledgeStore struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

var _ KnowledgeStore = (*WeaviateKnowledgeStore)(nil)

// NewWeaviateKnowledgeStore creates a knowledge store backed by the
// given client and embedding provider. The Knowledge class must exist
// (see datatypes.EnsureKnowledgeSchema).
func NewWeaviateKnowledgeStore(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateKnowledgeStore {
	return &WeaviateKnowledgeStore{client: client, embedder: embedder}
}

// Insert adds one document and returns its generated UUID.
func (s *WeaviateKnowledgeStore) Insert(ctx context.Context, props datatypes.KnowledgeProperties) (string, error) {
	ctx, span := tracer.Start(ctx, "KnowledgeInsert")
	defer span.End()

	vector, err := s.embedder.Embed(ctx, props.Content)
	if err != nil {
		return "", fmt.Errorf("failed to embed knowledge content: %w", err)
	}

	if props.Timestamp == 0 {
		props.Timestamp = time.Now().UnixMilli()
	}
	id := uuid.NewString()

	_, err = s.client.Data().Creator().
		WithClassName(datatypes.KnowledgeClass).
		WithID(id).
		WithProperties(props.ToMap()).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to insert knowledge: %v", ErrStoreUnavailable, err)
	}

	slog.Debug("Stored knowledge document", "id", id, "source", props.Source)
	return id, nil
}

// QueryNearest retrieves up to limit documents ranked by cosine
// distance to the embedding of the given text, ascending.
func (s *WeaviateKnowledgeStore) QueryNearest(ctx context.Context, text string, limit int) ([]ScoredKnowledge, error) {
	ctx, span := tracer.Start(ctx, "KnowledgeQueryNearest")
	defer span.End()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed knowledge query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.KnowledgeClass).
		WithFields(knowledgeFields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge query failed: %v", ErrStoreUnavailable, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse knowledge query results: %w", err)
	}

	out := make([]ScoredKnowledge, 0, len(parsed.Get.Knowledge))
	for _, row := range parsed.Get.Knowledge {
		out = append(out, ScoredKnowledge{
			ID:       row.Additional.ID,
			Content:  row.Content,
			Source:   row.Source,
			Distance: row.Additional.Distance,
		})
	}
	return out, nil
}

// =============================================================================
// Memory Implementation
// =============================================================================

// MemoryKnowledgeStore implements KnowledgeStore in process memory,
// with the same deterministic ranking as MemoryInteractionStore:
// distance ascending, ties broken by insertion order.
type MemoryKnowledgeStore struct {
	embedder EmbeddingProvider

	mu      sync.RWMutex
	records []knowledgeRecord
	seq     int64
}

type knowledgeRecord struct {
	id     string
	props  datatypes.KnowledgeProperties
	vector []float32
	seq    int64
}

var _ KnowledgeStore = (*MemoryKnowledgeStore)(nil)

// NewMemoryKnowledgeStore creates an empty in-memory knowledge store.
func NewMemoryKnowledgeStore(embedder EmbeddingProvider) *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{embedder: embedder}
}

// Insert adds one document and returns its generated UUID.
func (s *MemoryKnowledgeStore) Insert(ctx context.Context, props datatypes.KnowledgeProperties) (string, error) {
	vector, err := s.embedder.Embed(ctx, props.Content)
	if err != nil {
		return "", fmt.Errorf("failed to embed knowledge content: %w", err)
	}

	if props.Timestamp == 0 {
		props.Timestamp = time.Now().UnixMilli()
	}
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records = append(s.records, knowledgeRecord{
		id:     id,
		props:  props,
		vector: vector,
		seq:    s.seq,
	})
	return id, nil
}

// QueryNearest retrieves up to limit documents ranked by cosine
// distance ascending, ties broken by insertion order (earliest first).
func (s *MemoryKnowledgeStore) QueryNearest(ctx context.Context, text string, limit int) ([]ScoredKnowledge, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed knowledge query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scoredRecord struct {
		rec      knowledgeRecord
		distance float32
	}
	scored := make([]scoredRecord, 0, len(s.records))
	for _, rec := range s.records {
		scored = append(scored, scoredRecord{rec: rec, distance: cosineDistance(vector, rec.vector)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return scored[i].rec.seq < scored[j].rec.seq
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]ScoredKnowledge, 0, len(scored))
	for _, sr := range scored {
		d := sr.distance
		out = append(out, ScoredKnowledge{
			ID:       sr.rec.id,
			Content:  sr.rec.props.Content,
			Source:   sr.rec.props.Source,
			Distance: &d,
		})
	}
	return out, nil
}

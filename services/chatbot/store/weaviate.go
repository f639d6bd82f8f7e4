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
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

var tracer = otel.Tracer("chatbot.store")

// interactionFields is the field set requested on every Interaction query.
var interactionFields = []graphql.Field{
	{Name: "thread_id"},
	{Name: "question"},
	{Name: "answer"},
	{Name: "source"},
	{Name: "confidence"},
	{Name: "timestamp"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "id"},
		{Name: "distance"},
	}},
}

// WeaviateInteractionStore implements InteractionStore using Weaviate.
//
// # Description
//
// WeaviateInteractionStore persists interactions in the Interaction
// class with externally computed question embeddings and cosine
// distance. Exact lookups filter on the literal question property;
// nearest-neighbor lookups rank by vector distance ascending.
//
// # Thread Safety
//
// WeaviateInteractionStore is safe for concurrent use. The underlying
// Weaviate client handles connection pooling.
//
// # Example
//
//	st := NewWeaviateInteractionStore(client, embedder)
//	id, err := st.Insert(ctx, datatypes.InteractionProperties{
//	    Question: "What is the capital of France?",
//	    Answer:   "Paris.",
//	})
type WeaviateInteractionStore struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

// compile-time interface check
var _ InteractionStore = (*WeaviateInteractionStore)(nil)

// NewWeaviateInteractionStore creates a store backed by the given client
// and embedding provider.
//
// # Assumptions
//
//   - Client is connected and authenticated to Weaviate.
//   - The Interaction class exists (see datatypes.EnsureInteractionSchema).
//   - Embedder is configured and accessible.
func NewWeaviateInteractionStore(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateInteractionStore {
	return &WeaviateInteractionStore{client: client, embedder: embedder}
}

// Insert appends one interaction and returns its generated UUID.
//
// # Description
//
// Embeds the question, assigns a fresh UUID for the record identity
// (never derived from the question content, so repeated questions get
// distinct records), stamps the current time when the caller left
// Timestamp zero, and writes the object with its vector. The literal
// question stays queryable for exact-cache lookups.
//
// # Outputs
//
//   - string: The new record's UUID.
//   - error: Wraps ErrStoreUnavailable when Weaviate rejects the write;
//     embedding failures are reported as-is.
func (s *WeaviateInteractionStore) Insert(ctx context.Context, props datatypes.InteractionProperties) (string, error) {
	ctx, span := tracer.Start(ctx, "Insert")
	defer span.End()

	vector, err := s.embedder.Embed(ctx, props.Question)
	if err != nil {
		return "", fmt.Errorf("failed to embed question for insert: %w", err)
	}

	if props.Timestamp == 0 {
		props.Timestamp = time.Now().UnixMilli()
	}
	id := uuid.NewString()

	_, err = s.client.Data().Creator().
		WithClassName(datatypes.InteractionClass).
		WithID(id).
		WithProperties(props.ToMap()).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to insert interaction: %v", ErrStoreUnavailable, err)
	}

	slog.Debug("Stored interaction", "id", id, "threadID", props.ThreadID)
	return id, nil
}

// QueryExact retrieves records whose stored question equals the given
// text exactly.
//
// # Description
//
// Builds an equality filter on the question property. No vector search
// is involved, so returned Distance fields are nil. An empty result is
// not an error; the caller decides whether a miss matters.
func (s *WeaviateInteractionStore) QueryExact(ctx context.Context, question string, limit int) ([]ScoredInteraction, error) {
	ctx, span := tracer.Start(ctx, "QueryExact")
	defer span.End()

	whereFilter := filters.Where().
		WithPath([]string{"question"}).
		WithOperator(filters.Equal).
		WithValueText(question)

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.InteractionClass).
		WithFields(interactionFields...).
		WithWhere(whereFilter).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: exact query failed: %v", ErrStoreUnavailable, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.InteractionQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exact query results: %w", err)
	}
	return parseInteractionResults(parsed), nil
}

// QueryNearest retrieves up to limit records ranked by cosine distance
// to the embedding of the given question, ascending.
//
// # Limitations
//
//   - Tie ordering among equal distances follows the engine's stable
//     ranking; the in-memory store is the reference for strict
//     insertion-order tie-breaks.
func (s *WeaviateInteractionStore) QueryNearest(ctx context.Context, question string, limit int) ([]ScoredInteraction, error) {
	ctx, span := tracer.Start(ctx, "QueryNearest")
	defer span.End()

	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.InteractionClass).
		WithFields(interactionFields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: nearest query failed: %v", ErrStoreUnavailable, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.InteractionQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nearest query results: %w", err)
	}
	return parseInteractionResults(parsed), nil
}

// List retrieves up to limit records without similarity ranking.
func (s *WeaviateInteractionStore) List(ctx context.Context, limit int) ([]ScoredInteraction, error) {
	ctx, span := tracer.Start(ctx, "List")
	defer span.End()

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.InteractionClass).
		WithFields(interactionFields...).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list query failed: %v", ErrStoreUnavailable, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.InteractionQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse list results: %w", err)
	}
	return parseInteractionResults(parsed), nil
}

// DeleteThread removes all records for the given thread and returns how
// many objects the delete matched.
func (s *WeaviateInteractionStore) DeleteThread(ctx context.Context, threadID string) (int, error) {
	ctx, span := tracer.Start(ctx, "DeleteThread")
	defer span.End()

	whereFilter := filters.Where().
		WithPath([]string{"thread_id"}).
		WithOperator(filters.Equal).
		WithValueText(threadID)

	response, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.InteractionClass).
		WithOutput("minimal").
		WithWhere(whereFilter).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete thread %s: %v", ErrStoreUnavailable, threadID, err)
	}

	matched := 0
	if response != nil && response.Results != nil {
		matched = int(response.Results.Matches)
	}
	slog.Info("Deleted thread interactions", "threadID", threadID, "matched", matched)
	return matched, nil
}

// parseInteractionResults converts InteractionQueryResponse rows into
// ScoredInteraction slices, preserving the response order.
func parseInteractionResults(resp *datatypes.InteractionQueryResponse) []ScoredInteraction {
	if resp == nil {
		return []ScoredInteraction{}
	}

	out := make([]ScoredInteraction, 0, len(resp.Get.Interaction))
	for _, row := range resp.Get.Interaction {
		confidence := 0.0
		if row.Confidence != nil {
			confidence = *row.Confidence
		}
		out = append(out, ScoredInteraction{
			ID:         row.Additional.ID,
			ThreadID:   row.ThreadID,
			Question:   row.Question,
			Answer:     row.Answer,
			Source:     row.Source,
			Confidence: confidence,
			Timestamp:  row.Timestamp,
			Distance:   row.Additional.Distance,
		})
	}
	return out
}

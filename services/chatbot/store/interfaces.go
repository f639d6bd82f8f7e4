// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides the append-only, embedding-indexed interaction log.
//
// # Description
//
// This package implements the persistence layer for past interactions.
// Each record pairs a user question with the produced answer, carries a
// vector embedding of the question, and is retrievable two ways: by
// literal question match (exact cache lookups) and by vector similarity
// (nearest-neighbor retrieval). Records are immutable once inserted;
// there is no update or single-record delete path.
//
// # Architecture
//
// Two implementations share one interface:
//   - WeaviateInteractionStore: production store backed by a Weaviate
//     Interaction class with cosine distance.
//   - MemoryInteractionStore: in-process store for tests and lightweight
//     deployments, with fully deterministic ranking.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. Visibility between a
// concurrent insert and query is eventual, not read-your-writes.
package store

import (
	"context"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

// ScoredInteraction is one stored interaction returned from a query.
//
// # Fields
//
//   - ID: The record's UUID, assigned at insert time.
//   - ThreadID: Conversation thread the interaction belongs to.
//   - Question: The literal question text the record was stored under.
//   - Answer: The answer produced for the question.
//   - Source: How the answer was produced (exact_cache, augmented, cold).
//   - Confidence: Score the answer was produced with.
//   - Timestamp: Unix millis at insert, nil when the record predates
//     timestamping. Nil sorts as earliest in transcript projections.
//   - Distance: Cosine distance from the query vector. Nil for queries
//     that did not rank by similarity (exact lookups, listings).
type ScoredInteraction struct {
	ID         string
	ThreadID   string
	Question   string
	Answer     string
	Source     string
	Confidence float64
	Timestamp  *int64
	Distance   *float32
}

// InteractionStore defines the interface for the interaction log.
//
// # Description
//
// InteractionStore provides append, exact-match lookup, and
// nearest-neighbor retrieval over stored interactions. Embedding of the
// question text happens inside the store, so callers pass text, not
// vectors.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Example
//
//	id, err := st.Insert(ctx, datatypes.InteractionProperties{
//	    Question: "What is the capital of France?",
//	    Answer:   "Paris.",
//	})
//	hits, err := st.QueryExact(ctx, "What is the capital of France?", 1)
type InteractionStore interface {
	// Insert appends one interaction and returns its generated UUID.
	//
	// # Description
	//
	// Embeds props.Question, assigns a fresh UUID, stamps the current
	// time when props.Timestamp is zero, and writes the record. The
	// literal question is stored as a queryable property. Failures are
	// reported; there is no silent retry.
	//
	// # Outputs
	//
	//   - string: The new record's UUID.
	//   - error: Wraps ErrStoreUnavailable when the backend is unreachable.
	Insert(ctx context.Context, props datatypes.InteractionProperties) (string, error)

	// QueryExact retrieves records whose stored question equals the
	// given text exactly. An empty result is not an error.
	QueryExact(ctx context.Context, question string, limit int) ([]ScoredInteraction, error)

	// QueryNearest retrieves up to limit records ranked by cosine
	// distance to the embedding of the given question, ascending.
	// Ties rank earlier-inserted records first.
	QueryNearest(ctx context.Context, question string, limit int) ([]ScoredInteraction, error)

	// List retrieves up to limit records without similarity ranking,
	// for transcript projections. Ordering is unspecified; callers
	// sort by timestamp themselves.
	List(ctx context.Context, limit int) ([]ScoredInteraction, error)

	// DeleteThread removes all records for the given thread.
	DeleteThread(ctx context.Context, threadID string) (int, error)
}

// EmbeddingProvider defines the interface for computing text embeddings.
//
// # Description
//
// EmbeddingProvider wraps calls to the embedding model to convert text
// into vector representations for semantic search. This abstraction
// allows for easy mocking in tests and swapping embedding backends.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingProvider interface {
	// Embed computes a vector embedding for the given text.
	//
	// # Outputs
	//
	//   - []float32: The embedding vector with dimension matching the model.
	//   - error: Non-nil if embedding fails (network error, model error).
	Embed(ctx context.Context, text string) ([]float32, error)
}

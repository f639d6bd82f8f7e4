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
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

// MemoryInteractionStore implements InteractionStore in process memory.
//
// # Description
//
// MemoryInteractionStore keeps every record with its vector and an
// insertion sequence number. Nearest-neighbor queries compute cosine
// distance over all records and sort ascending with ties broken by
// insertion order, earliest first, so identical inputs always produce
// identical rankings. Used in lightweight deployments (no Weaviate
// configured) and throughout the test suites.
//
// # Thread Safety
//
// MemoryInteractionStore is safe for concurrent use; a single RWMutex
// guards the record slice.
type MemoryInteractionStore struct {
	embedder EmbeddingProvider

	mu      sync.RWMutex
	records []memoryRecord
	seq     int64
}

type memoryRecord struct {
	id     string
	props  datatypes.InteractionProperties
	vector []float32
	seq    int64
}

var _ InteractionStore = (*MemoryInteractionStore)(nil)

// NewMemoryInteractionStore creates an empty in-memory store.
func NewMemoryInteractionStore(embedder EmbeddingProvider) *MemoryInteractionStore {
	return &MemoryInteractionStore{embedder: embedder}
}

// Insert appends one interaction and returns its generated UUID.
func (s *MemoryInteractionStore) Insert(ctx context.Context, props datatypes.InteractionProperties) (string, error) {
	vector, err := s.embedder.Embed(ctx, props.Question)
	if err != nil {
		return "", fmt.Errorf("failed to embed question for insert: %w", err)
	}

	if props.Timestamp == 0 {
		props.Timestamp = time.Now().UnixMilli()
	}
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records = append(s.records, memoryRecord{
		id:     id,
		props:  props,
		vector: vector,
		seq:    s.seq,
	})
	return id, nil
}

// QueryExact retrieves records whose stored question equals the given
// text exactly, in insertion order.
func (s *MemoryInteractionStore) QueryExact(ctx context.Context, question string, limit int) ([]ScoredInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []ScoredInteraction{}
	for _, rec := range s.records {
		if rec.props.Question != question {
			continue
		}
		out = append(out, rec.scored(nil))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// QueryNearest retrieves up to limit records ranked by cosine distance
// ascending, ties broken by insertion order (earliest first).
func (s *MemoryInteractionStore) QueryNearest(ctx context.Context, question string, limit int) ([]ScoredInteraction, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scoredRecord struct {
		rec      memoryRecord
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
	out := make([]ScoredInteraction, 0, len(scored))
	for _, sr := range scored {
		d := sr.distance
		out = append(out, sr.rec.scored(&d))
	}
	return out, nil
}

// List retrieves up to limit records in insertion order.
func (s *MemoryInteractionStore) List(ctx context.Context, limit int) ([]ScoredInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScoredInteraction, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.scored(nil))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteThread removes all records for the given thread.
func (s *MemoryInteractionStore) DeleteThread(ctx context.Context, threadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	deleted := 0
	for _, rec := range s.records {
		if rec.props.ThreadID == threadID {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func (r memoryRecord) scored(distance *float32) ScoredInteraction {
	ts := r.props.Timestamp
	return ScoredInteraction{
		ID:         r.id,
		ThreadID:   r.props.ThreadID,
		Question:   r.props.Question,
		Answer:     r.props.Answer,
		Source:     r.props.Source,
		Confidence: r.props.Confidence,
		Timestamp:  &ts,
		Distance:   distance,
	}
}

// cosineDistance returns 1 - cosine similarity. Degenerate zero-norm
// vectors are treated as maximally distant from everything.
func cosineDistance(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}

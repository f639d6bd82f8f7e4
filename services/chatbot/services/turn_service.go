// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services orchestrates conversational turns.
//
// # Description
//
// TurnService is the single entry point for turn processing. It chains
// request validation, retrieval classification, context assembly, the
// dialogue state machine, and interaction persistence into one
// pipeline, and projects stored interactions into transcript views.
// Identical in-flight turns on the same thread are deduplicated so one
// generation serves all concurrent callers.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/dialogue"
	"github.com/paullosergio/chatbot/services/chatbot/history"
	"github.com/paullosergio/chatbot/services/chatbot/observability"
	"github.com/paullosergio/chatbot/services/chatbot/retrieval"
	"github.com/paullosergio/chatbot/services/chatbot/store"
)

var tracer = otel.Tracer("chatbot.services")

// TurnService processes conversational turns end to end.
//
// # Thread Safety
//
// Safe for concurrent use. Turns on the same thread serialize inside
// the dialogue machine; distinct threads run in parallel.
//
// # Example
//
//	svc := NewTurnService(st, knowledge, policy, machine, checkpoints, metrics)
//	resp, err := svc.HandleTurn(ctx, &req)
type TurnService struct {
	store       store.InteractionStore
	knowledge   store.KnowledgeStore
	policy      *retrieval.Policy
	machine     *dialogue.Machine
	checkpoints *dialogue.CheckpointStore
	projector   *history.Projector
	metrics     *observability.TurnMetrics

	// group collapses identical concurrent turns (same thread, same
	// question) into one execution.
	group singleflight.Group
}

// NewTurnService creates a turn service over the given components.
// knowledge may be nil, in which case turns run without knowledge-base
// grounding and ingestion is rejected; metrics may be nil, in which
// case no metrics are recorded.
func NewTurnService(
	st store.InteractionStore,
	knowledge store.KnowledgeStore,
	policy *retrieval.Policy,
	machine *dialogue.Machine,
	checkpoints *dialogue.CheckpointStore,
	metrics *observability.TurnMetrics,
) *TurnService {
	return &TurnService{
		store:       st,
		knowledge:   knowledge,
		policy:      policy,
		machine:     machine,
		checkpoints: checkpoints,
		projector:   history.NewProjector(st),
		metrics:     metrics,
	}
}

// HandleTurn processes one conversational turn.
//
// # Description
//
// The pipeline: validate the request, classify the question against
// the interaction store, then either replay an exact cache hit or run
// the dialogue machine with the assembled generation context. A cache
// hit skips generation, checkpointing, and persistence entirely; the
// stored answer comes back with its original confidence. Generated
// turns are appended to the store afterwards; a failed append does not
// fail the turn, it flags the response as unpersisted.
//
// Recovered failures never surface as errors. A generation failure
// produces a degraded answer with confidence zero; a checkpoint
// failure delivers the answer with broken continuity flagged; both are
// reported in response metadata. The returned error is non-nil only
// for invalid requests and for an unreachable store during
// classification.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - req: The turn request. Defaults are filled in place.
//
// # Outputs
//
//   - *datatypes.TurnResponse: The answer plus metadata. Metadata
//     always carries source, response, and timestamp keys.
//   - error: *InvalidPreferenceError for rejected preference values,
//     a validation error for malformed requests, or a store error
//     wrapping store.ErrStoreUnavailable.
func (s *TurnService) HandleTurn(ctx context.Context, req *datatypes.TurnRequest) (*datatypes.TurnResponse, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "HandleTurn",
		trace.WithAttributes(attribute.String("thread.id", req.ThreadID)))
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request validation failed")
		if perr := req.Preferences.Validate(); perr != nil {
			s.countError(observability.ErrorKindInvalidPreference)
			return nil, &InvalidPreferenceError{Cause: perr}
		}
		return nil, fmt.Errorf("invalid turn request: %w", err)
	}

	// Collapse identical concurrent turns. Each caller gets its own
	// response copy with a fresh response ID.
	key := req.ThreadID + "\x00" + req.Question
	shared, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.processTurn(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn processing failed")
		return nil, err
	}

	resp := cloneResponse(shared.(*datatypes.TurnResponse), req.RequestID)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	s.observeDuration(fmt.Sprint(resp.Metadata[datatypes.MetaSource]), time.Since(start))

	span.SetAttributes(
		attribute.String("turn.source", fmt.Sprint(resp.Metadata[datatypes.MetaSource])),
		attribute.Float64("turn.confidence", resp.Confidence),
	)
	return resp, nil
}

// processTurn runs the deduplicated portion of the pipeline.
func (s *TurnService) processTurn(ctx context.Context, req *datatypes.TurnRequest) (*datatypes.TurnResponse, error) {
	decision, err := s.policy.Classify(ctx, req.Question)
	if err != nil {
		s.countError(observability.ErrorKindStoreUnavailable)
		s.countTurn("", "error")
		return nil, fmt.Errorf("retrieval classification failed: %w", err)
	}

	if decision.Source == retrieval.SourceExactCache {
		slog.Info("Turn served from exact cache",
			"threadID", req.ThreadID, "cachedID", decision.CachedID)
		resp := datatypes.NewTurnResponse(req.RequestID, req.ThreadID,
			decision.CachedAnswer, datatypes.SourceExactCache, decision.CachedConfidence)
		finalizeMetadata(resp)
		if s.metrics != nil {
			s.metrics.CacheHitsTotal.Inc()
		}
		s.countTurn(datatypes.SourceExactCache, "success")
		return resp, nil
	}

	genCtx := retrieval.Assemble(decision, req.Context, req.Preferences)
	s.attachKnowledge(ctx, req.Question, genCtx)
	language := req.Preferences.EffectiveLanguage()

	result, err := s.machine.Run(ctx, req.ThreadID, req.Question, genCtx, language)
	if err != nil {
		return nil, err
	}

	source := sourceLabel(decision.Source)
	status := "success"
	if result.GenerationErr != nil {
		source = datatypes.SourceDegraded
		status = "error"
	}

	resp := datatypes.NewTurnResponse(req.RequestID, req.ThreadID,
		result.Answer, source, result.Confidence)

	if result.GenerationErr != nil {
		resp.Metadata[datatypes.MetaError] = result.GenerationErr.Error()
		resp.Metadata[datatypes.MetaErrorKind] = string(observability.ErrorKindGeneration)
		s.countError(observability.ErrorKindGeneration)
	}
	if result.CheckpointErr != nil {
		resp.Metadata[datatypes.MetaCheckpointError] = result.CheckpointErr.Error()
		s.countError(observability.ErrorKindCheckpoint)
	}

	// Only committed turns enter the store; degraded answers are not
	// cache material.
	if result.GenerationErr == nil {
		props := datatypes.InteractionProperties{
			ThreadID:   req.ThreadID,
			Question:   req.Question,
			Answer:     result.Answer,
			Response:   result.Answer,
			Source:     source,
			Confidence: result.Confidence,
			Timestamp:  resp.Timestamp,
		}
		if _, err := s.store.Insert(ctx, props); err != nil {
			slog.Error("Failed to persist interaction",
				"threadID", req.ThreadID, "error", err)
			resp.Metadata[datatypes.MetaUnpersisted] = true
			resp.Metadata[datatypes.MetaError] = err.Error()
			resp.Metadata[datatypes.MetaErrorKind] = string(observability.ErrorKindStoreUnavailable)
			s.countError(observability.ErrorKindStoreUnavailable)
		}
	}

	finalizeMetadata(resp)
	s.countTurn(source, status)
	return resp, nil
}

// attachKnowledge searches the knowledge base for documents similar to
// the question and injects their contents under the relevant_knowledge
// context key. A key the caller already supplied is left alone, same
// rule the assembler applies to every caller field. Search failures
// leave the turn ungrounded rather than failing it.
func (s *TurnService) attachKnowledge(ctx context.Context, question string, genCtx map[string]interface{}) {
	if s.knowledge == nil {
		return
	}
	if _, ok := genCtx[retrieval.KeyRelevantKnowledge]; ok {
		return
	}

	docs, err := s.knowledge.QueryNearest(ctx, question, retrieval.KnowledgeTopK())
	if err != nil {
		slog.Warn("Knowledge search failed, generating without grounding", "error", err)
		return
	}
	if len(docs) == 0 {
		return
	}

	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
	}
	genCtx[retrieval.KeyRelevantKnowledge] = contents
}

// AddKnowledge ingests one document into the knowledge base and
// returns its generated ID.
//
// # Outputs
//
//   - string: The stored document's UUID.
//   - error: ErrKnowledgeDisabled when no knowledge store is wired, a
//     validation error for empty content, or a store error wrapping
//     store.ErrStoreUnavailable.
func (s *TurnService) AddKnowledge(ctx context.Context, req *datatypes.KnowledgeRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "AddKnowledge")
	defer span.End()

	if s.knowledge == nil {
		return "", ErrKnowledgeDisabled
	}
	if strings.TrimSpace(req.Content) == "" {
		return "", fmt.Errorf("knowledge content must not be empty")
	}

	id, err := s.knowledge.Insert(ctx, datatypes.KnowledgeProperties{
		Content: req.Content,
		Source:  req.Source,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "knowledge ingestion failed")
		s.countError(observability.ErrorKindStoreUnavailable)
		return "", err
	}

	slog.Info("Knowledge document ingested", "id", id, "source", req.Source)
	return id, nil
}

// GetHistory returns stored interactions newest first.
//
// # Inputs
//
//   - limit: Maximum entries to return; non-positive means no limit
//     beyond the projector's scan bound.
func (s *TurnService) GetHistory(ctx context.Context, limit int) (*datatypes.HistoryResponse, error) {
	ctx, span := tracer.Start(ctx, "GetHistory")
	defer span.End()

	entries, err := s.projector.Project(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history projection failed")
		return nil, err
	}
	return &datatypes.HistoryResponse{Entries: entries, Count: len(entries)}, nil
}

// ThreadMessages returns the committed message sequence for one thread.
// A fresh thread returns an empty slice.
func (s *TurnService) ThreadMessages(ctx context.Context, threadID string) ([]datatypes.Message, error) {
	return s.machine.History(ctx, threadID)
}

// ListThreads returns the distinct thread IDs present in the store, in
// first-seen order.
func (s *TurnService) ListThreads(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "ListThreads")
	defer span.End()

	records, err := s.store.List(ctx, history.ScanLimit())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "thread listing failed")
		return nil, err
	}

	seen := make(map[string]bool)
	threads := []string{}
	for _, rec := range records {
		if rec.ThreadID == "" || seen[rec.ThreadID] {
			continue
		}
		seen[rec.ThreadID] = true
		threads = append(threads, rec.ThreadID)
	}
	return threads, nil
}

// DeleteThread removes a thread's stored interactions and its
// checkpoint. Returns the number of interactions removed.
func (s *TurnService) DeleteThread(ctx context.Context, threadID string) (int, error) {
	ctx, span := tracer.Start(ctx, "DeleteThread",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	deleted, err := s.store.DeleteThread(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "thread deletion failed")
		return 0, err
	}

	if err := s.checkpoints.Delete(ctx, threadID); err != nil {
		slog.Warn("Failed to delete thread checkpoint",
			"threadID", threadID, "error", err)
	}

	slog.Info("Thread deleted", "threadID", threadID, "interactions", deleted)
	return deleted, nil
}

// =============================================================================
// Helpers
// =============================================================================

// finalizeMetadata stamps the metadata keys every response carries.
func finalizeMetadata(resp *datatypes.TurnResponse) {
	resp.Metadata[datatypes.MetaResponse] = resp.Answer
	resp.Metadata[datatypes.MetaTimestamp] = resp.Timestamp
}

// cloneResponse copies a shared response for one caller, with a fresh
// response ID and the caller's request ID.
func cloneResponse(shared *datatypes.TurnResponse, requestID string) *datatypes.TurnResponse {
	metadata := make(map[string]interface{}, len(shared.Metadata))
	for k, v := range shared.Metadata {
		metadata[k] = v
	}
	return &datatypes.TurnResponse{
		ResponseID: uuid.NewString(),
		RequestID:  requestID,
		ThreadID:   shared.ThreadID,
		Timestamp:  shared.Timestamp,
		Answer:     shared.Answer,
		Confidence: shared.Confidence,
		Metadata:   metadata,
	}
}

// sourceLabel maps a retrieval source to its metadata value.
func sourceLabel(src retrieval.Source) string {
	switch src {
	case retrieval.SourceAugmented:
		return datatypes.SourceAugmented
	default:
		return datatypes.SourceCold
	}
}

func (s *TurnService) countTurn(source, status string) {
	if s.metrics == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	s.metrics.TurnsTotal.WithLabelValues(source, status).Inc()
}

func (s *TurnService) countError(kind observability.ErrorKind) {
	if s.metrics == nil {
		return
	}
	s.metrics.ErrorsTotal.WithLabelValues(string(kind)).Inc()
}

func (s *TurnService) observeDuration(source string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.TurnDurationSeconds.WithLabelValues(source).Observe(elapsed.Seconds())
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dialogue runs the per-thread conversation state machine.
//
// # Description
//
// A thread's lifecycle is a two-phase machine: it starts empty, each
// turn transitions through generation, and the turn commits by
// checkpointing the updated message sequence before the answer is
// returned. Generation failure aborts the transition: the state is not
// checkpointed, the caller receives a degraded answer with confidence
// zero, and the thread remains at its last committed turn. Checkpoint
// failure after successful generation delivers the answer anyway and
// flags the broken continuity as a distinct error kind.
//
// # Thread Safety
//
// Turns on the same thread are strictly serialized; distinct threads
// run in parallel.
package dialogue

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/retrieval"
)

var tracer = otel.Tracer("chatbot.dialogue")

// DegradedAnswer is the response text delivered when generation fails.
const DegradedAnswer = "Sorry, I encountered an error processing your request."

// Confidence scoring constants. Penalties are multiplicative: a turn
// with no grounding material in a non-default language scores
// 0.9 * 0.8 * 0.95.
const (
	// BaseConfidence is the starting score for every generated answer.
	BaseConfidence = 0.9

	// NoKnowledgePenalty applies when the generation context carries
	// neither relevant knowledge nor previous responses.
	NoKnowledgePenalty = 0.8

	// LanguagePenalty applies when the preferred language differs from
	// the default.
	LanguagePenalty = 0.95
)

// Generator defines the interface for producing an assistant response.
//
// # Description
//
// Generator receives the thread's full message sequence, user turn
// included, plus the assembled generation context. The context is
// opaque here; the machine only inspects it for confidence scoring.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate produces the assistant response for the message sequence.
	//
	// # Outputs
	//
	//   - string: The response text.
	//   - error: Non-nil if the backing model fails; the machine turns
	//     this into a degraded answer, never a panic.
	Generate(ctx context.Context, messages []datatypes.Message, genCtx map[string]interface{}) (string, error)
}

// TurnResult is the outcome of running one turn through the machine.
//
// # Fields
//
//   - Answer: The response text; DegradedAnswer when generation failed.
//   - Confidence: Score in [0, 1]; zero on degraded turns.
//   - TurnCount: The thread's committed turn count after this turn.
//   - GenerationErr: Set when generation failed. The turn was not
//     checkpointed.
//   - CheckpointErr: Set when durable state could not be loaded or
//     saved. The answer is still valid; continuity is broken.
type TurnResult struct {
	Answer        string
	Confidence    float64
	TurnCount     int
	GenerationErr error
	CheckpointErr error
}

// Machine drives threads through their turn transitions.
//
// # Example
//
//	machine := NewMachine(checkpoints, generator)
//	result, err := machine.Run(ctx, "thread-42", "What is the capital of France?", genCtx, "en")
//	if result.GenerationErr != nil {
//	    // degraded answer, confidence 0
//	}
type Machine struct {
	checkpoints *CheckpointStore
	generator   Generator
	locks       *threadLocks
}

// NewMachine creates a machine over the given checkpoint store and
// generator.
func NewMachine(checkpoints *CheckpointStore, generator Generator) *Machine {
	return &Machine{
		checkpoints: checkpoints,
		generator:   generator,
		locks:       newThreadLocks(),
	}
}

// Run executes one turn on a thread.
//
// # Description
//
// Serializes on the thread, loads the last committed state (a fresh
// thread starts empty), appends the user message, generates, appends
// the assistant message, and checkpoints before returning. The two
// appends and the checkpoint commit together: a generation failure
// leaves the stored state untouched, so the failed turn is invisible to
// the next one.
//
// Failures never propagate as panics or bare errors. Generation
// failure yields a degraded answer with confidence zero and
// GenerationErr set. A corrupt or unreadable checkpoint starts the
// thread fresh and sets CheckpointErr; a failed save delivers the
// generated answer with CheckpointErr set.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - threadID: The thread to run on. Must be non-empty.
//   - question: The user's message for this turn.
//   - genCtx: Assembled generation context; inspected only for
//     confidence scoring.
//   - language: Effective preferred language for this turn.
//
// # Outputs
//
//   - *TurnResult: Always non-nil when err is nil.
//   - error: Non-nil only for invalid arguments.
func (m *Machine) Run(ctx context.Context, threadID, question string, genCtx map[string]interface{}, language string) (*TurnResult, error) {
	if threadID == "" {
		return nil, errors.New("threadID must not be empty")
	}

	ctx, span := tracer.Start(ctx, "Run",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	lock := m.locks.get(threadID)
	lock.Lock()
	defer lock.Unlock()

	result := &TurnResult{}

	state, err := m.checkpoints.Load(ctx, threadID)
	if err != nil {
		// Unreadable history is reported, not fatal: the thread
		// restarts from empty and the caller sees the continuity gap.
		slog.Warn("Failed to load thread checkpoint, starting fresh",
			"threadID", threadID, "error", err)
		result.CheckpointErr = err
		state = nil
	}
	if state == nil {
		state = NewConversationState(threadID)
	}

	messages := append(append([]datatypes.Message{}, state.Messages...),
		datatypes.Message{Role: datatypes.RoleUser, Content: question})

	answer, genErr := m.generator.Generate(ctx, messages, genCtx)
	if genErr != nil {
		slog.Error("Generation failed, returning degraded answer",
			"threadID", threadID, "error", genErr)
		result.Answer = DegradedAnswer
		result.Confidence = 0
		result.TurnCount = state.TurnCount
		result.GenerationErr = &GenerationError{ThreadID: threadID, Cause: genErr}
		return result, nil
	}

	state.Messages = append(messages, datatypes.Message{Role: datatypes.RoleAssistant, Content: answer})
	state.TurnCount++

	if err := m.checkpoints.Save(ctx, state); err != nil {
		slog.Error("Failed to checkpoint thread after generation",
			"threadID", threadID, "error", err)
		result.CheckpointErr = err
	}

	result.Answer = answer
	result.Confidence = ScoreConfidence(genCtx, language)
	result.TurnCount = state.TurnCount
	return result, nil
}

// History returns the committed message sequence for a thread. A fresh
// thread returns an empty slice.
func (m *Machine) History(ctx context.Context, threadID string) ([]datatypes.Message, error) {
	state, err := m.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return []datatypes.Message{}, nil
	}
	return state.Messages, nil
}

// ScoreConfidence computes the confidence score for a generated answer.
//
// # Description
//
// Starts from BaseConfidence and applies multiplicative penalties: one
// when the context carries no grounding material, one when the
// preferred language differs from the default. Both penalties can apply
// to the same turn. The result is clamped to [0, 1].
func ScoreConfidence(genCtx map[string]interface{}, language string) float64 {
	confidence := BaseConfidence

	if !retrieval.HasRelevantMaterial(genCtx) {
		confidence *= NoKnowledgePenalty
	}
	if language != "" && language != datatypes.DefaultLanguage {
		confidence *= LanguagePenalty
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

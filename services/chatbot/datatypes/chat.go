// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for the turn endpoint.
// For preference types, see preferences.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQuestionBytes is the maximum size of a single question.
	// Checks byte length, not rune count, to bound memory per request.
	MaxQuestionBytes = 32 * 1024 // 32KB

	// MaxThreadIDLength bounds the thread identifier.
	MaxThreadIDLength = 128
)

// Metadata keys present on every turn response.
const (
	MetaSource          = "source"
	MetaError           = "error"
	MetaErrorKind       = "error_kind"
	MetaResponse        = "response"
	MetaTimestamp       = "timestamp"
	MetaUnpersisted     = "unpersisted"
	MetaCheckpointError = "checkpoint_error"
)

// Source values reported in response metadata.
const (
	SourceExactCache = "exact_cache"
	SourceAugmented  = "augmented"
	SourceCold       = "cold"
	SourceDegraded   = "degraded"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxQuestionBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxQuestionBytes
}

func generateUUID() string {
	return uuid.NewString()
}

// Message is one entry in a thread's message sequence.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// Turn Request Types
// =============================================================================

// TurnRequest represents one conversational turn submitted by a caller.
//
// # Description
//
// TurnRequest carries the user's question, the thread it belongs to, and
// optional caller context plus preferences. This is the body for the
// POST /v1/chat endpoint. Every request includes a unique ID and
// timestamp for audit trails and correlation.
//
// # Fields
//
//   - RequestID: Unique identifier for this request (UUID v4). Generated
//     server-side by EnsureDefaults when the client omits it.
//   - Timestamp: Unix timestamp in milliseconds (UTC).
//   - ThreadID: Required. Conversation thread identifier. Turns on the
//     same thread are processed strictly in order; distinct threads run
//     in parallel.
//   - Question: Required. The user's question, limited to 32KB.
//   - Context: Optional. Caller-supplied context fields merged into the
//     generation context. Caller fields win over retrieval-derived ones.
//   - Preferences: Optional. Response shaping options; validated values
//     only, invalid values reject the request.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: must be valid UUID v4 when present
//   - ThreadID: required, 1-128 characters
//   - Question: required, max 32768 bytes
//
// # Examples
//
//	req := TurnRequest{
//	    ThreadID: "thread-42",
//	    Question: "What is the capital of France?",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
type TurnRequest struct {
	RequestID   string                 `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp   int64                  `json:"timestamp" validate:"gte=0"`
	ThreadID    string                 `json:"thread_id" validate:"required,min=1,max=128"`
	Question    string                 `json:"question" validate:"required,maxbytes"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Preferences *Preferences           `json:"preferences,omitempty"`
}

// Validate validates the TurnRequest fields, including nested preferences.
//
// # Outputs
//
//   - error: Non-nil if validation failed, with details about which field.
func (r *TurnRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	return r.Preferences.Validate()
}

// EnsureDefaults populates RequestID and Timestamp if not provided by the
// client so every request has proper identifiers for tracing.
func (r *TurnRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Turn Response Types
// =============================================================================

// TurnResponse represents the outcome of one conversational turn.
//
// # Description
//
// Contains the answer, a confidence score in [0, 1], and a metadata map
// that always carries a "source" key (exact_cache, augmented, cold, or
// degraded) and carries an "error" key when the turn recovered from a
// generation or persistence failure. A degraded turn still produces a
// response; callers inspect metadata to learn what went wrong.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4).
//   - RequestID: Echo of the request ID for correlation.
//   - ThreadID: Echo of the thread the turn ran on.
//   - Timestamp: Unix timestamp in milliseconds (UTC) when the response
//     was generated.
//   - Answer: The response text.
//   - Confidence: Score in [0, 1]. Zero on degraded turns.
//   - Metadata: Always non-nil; always includes "source".
//   - ProcessingTimeMs: Time taken to process the request.
//
// # Examples
//
//	Response JSON:
//	{
//	    "response_id": "660f9500-f39c-42e5-b827-557766551111",
//	    "request_id": "550e8400-e29b-41d4-a716-446655440000",
//	    "thread_id": "thread-42",
//	    "timestamp": 1735817400000,
//	    "answer": "The capital of France is Paris.",
//	    "confidence": 0.9,
//	    "metadata": {"source": "exact_cache"},
//	    "processing_time_ms": 12
//	}
type TurnResponse struct {
	ResponseID       string                 `json:"response_id"`
	RequestID        string                 `json:"request_id"`
	ThreadID         string                 `json:"thread_id"`
	Timestamp        int64                  `json:"timestamp"`
	Answer           string                 `json:"answer"`
	Confidence       float64                `json:"confidence"`
	Metadata         map[string]interface{} `json:"metadata"`
	ProcessingTimeMs int64                  `json:"processing_time_ms,omitempty"`
}

// NewTurnResponse creates a TurnResponse with auto-generated ID and
// timestamp and a metadata map seeded with the given source.
func NewTurnResponse(requestID, threadID, answer, source string, confidence float64) *TurnResponse {
	return &TurnResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		ThreadID:   threadID,
		Timestamp:  time.Now().UnixMilli(),
		Answer:     answer,
		Confidence: confidence,
		Metadata:   map[string]interface{}{MetaSource: source},
	}
}

// =============================================================================
// History Types
// =============================================================================

// HistoryEntry is one stored interaction projected for transcript views.
//
// Entries are returned newest first. Records that were stored without a
// timestamp sort as the earliest entries.
type HistoryEntry struct {
	ID         string  `json:"id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// HistoryResponse is the body of the GET /v1/history endpoint.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Count   int            `json:"count"`
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// InteractionClass is the Weaviate class holding stored interactions.
const InteractionClass = "Interaction"

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("Interaction").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[InteractionQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, i := range parsed.Get.Interaction {
//	    fmt.Println(i.Question)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
//
// # Assumptions
//
//   - The response Data field is JSON-marshalable.
//   - The target type T has correct json tags.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Interaction Query Types
// =============================================================================

// InteractionQueryResponse represents the response from querying the
// Interaction class.
//
// # Fields
//
//   - Get.Interaction: Array of interaction objects with their Weaviate UUIDs.
type InteractionQueryResponse struct {
	Get struct {
		Interaction []InteractionResult `json:"Interaction"`
	} `json:"Get"`
}

// InteractionResult represents a single interaction from a query.
//
// Timestamp is a pointer so that records stored without one remain
// distinguishable from records stamped at the epoch.
type InteractionResult struct {
	ThreadID   string   `json:"thread_id"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Response   string   `json:"response"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence"`
	Timestamp  *int64   `json:"timestamp"`
	Additional struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// =============================================================================
// Interaction Property Types
// =============================================================================

// InteractionProperties represents the properties for creating an
// Interaction object.
//
// The literal question text is stored as a plain queryable property so
// that exact-match lookups filter on it directly; record identity comes
// from a separately generated UUID, never from the question content.
// The Response field duplicates Answer for transcript projections that
// read metadata only.
type InteractionProperties struct {
	ThreadID   string  `json:"thread_id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Response   string  `json:"response"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// ToMap converts InteractionProperties to map[string]interface{} for Weaviate.
//
// # Example
//
//	props := InteractionProperties{Question: "...", Answer: "...", Timestamp: now}
//	client.Data().Creator().WithProperties(props.ToMap()).Do(ctx)
func (p *InteractionProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"thread_id":  p.ThreadID,
		"question":   p.Question,
		"answer":     p.Answer,
		"response":   p.Response,
		"source":     p.Source,
		"confidence": p.Confidence,
		"timestamp":  p.Timestamp,
	}
}

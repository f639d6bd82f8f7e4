// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

// Reserved context keys.
const (
	// KeyPreviousResponses holds the answers of surviving neighbors on
	// augmented turns, ordered by distance ascending.
	KeyPreviousResponses = "previous_responses"

	// KeyRelevantKnowledge holds background material, either supplied
	// by the caller or retrieved from the knowledge base. Its presence
	// or absence feeds confidence scoring.
	KeyRelevantKnowledge = "relevant_knowledge"

	// KeyPreferences nests the validated preference map. It is owned by
	// the assembler and never overwritten by caller fields.
	KeyPreferences = "preferences"
)

// Assemble builds the generation context for one turn.
//
// # Description
//
// Merges three inputs into a single opaque map handed to generation:
//
//  1. Retrieval-derived fields. Augmented decisions contribute
//     previous_responses, the neighbor answers in distance order.
//  2. Caller context. Copied over the retrieval-derived fields, so a
//     caller-supplied value wins any key collision.
//  3. Preferences. Nested last under the reserved "preferences" key;
//     nothing overwrites them, including a caller field of that name.
//
// The assembler attaches no meaning to unknown keys; they pass through
// untouched.
//
// # Inputs
//
//   - decision: The classification result for the turn.
//   - callerCtx: Caller-supplied context fields, may be nil.
//   - prefs: Validated preferences, may be nil.
//
// # Outputs
//
//   - map[string]interface{}: Freshly allocated; callers may mutate it.
//
// # Example
//
//	genCtx := Assemble(decision, map[string]interface{}{
//	    "relevant_knowledge": []string{"Paris is the capital of France."},
//	}, &datatypes.Preferences{Formality: "formal"})
func Assemble(decision Decision, callerCtx map[string]interface{}, prefs *datatypes.Preferences) map[string]interface{} {
	genCtx := map[string]interface{}{}

	if decision.Source == SourceAugmented && len(decision.Neighbors) > 0 {
		previous := make([]string, 0, len(decision.Neighbors))
		for _, n := range decision.Neighbors {
			previous = append(previous, n.Answer)
		}
		genCtx[KeyPreviousResponses] = previous
	}

	for k, v := range callerCtx {
		genCtx[k] = v
	}

	if prefMap := prefs.ToMap(); len(prefMap) > 0 {
		genCtx[KeyPreferences] = prefMap
	}

	return genCtx
}

// HasRelevantMaterial reports whether the assembled context carries any
// grounding material, either caller-supplied knowledge or neighbor
// answers. Turns without it take a confidence penalty.
func HasRelevantMaterial(genCtx map[string]interface{}) bool {
	if v, ok := genCtx[KeyRelevantKnowledge]; ok && !isEmptyValue(v) {
		return true
	}
	if v, ok := genCtx[KeyPreviousResponses]; ok && !isEmptyValue(v) {
		return true
	}
	return false
}

// isEmptyValue treats nil, empty strings, and empty slices as absent.
func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	}
	return false
}

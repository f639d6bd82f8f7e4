// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval decides how much of the interaction store feeds a
// turn.
//
// # Description
//
// This package classifies an incoming question against the stored
// interaction log and assembles the resulting generation context. A
// question takes exactly one of three paths: exact_cache (a literal
// match replays its stored answer), augmented (close-enough neighbors
// feed generation), or cold (nothing relevant, generation runs bare).
// Classification is deterministic: the same question against the same
// store state always produces the same decision.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/paullosergio/chatbot/services/chatbot/store"
)

var tracer = otel.Tracer("chatbot.retrieval")

// Policy classifies questions against the interaction store.
//
// # Thread Safety
//
// Policy is safe for concurrent use; it holds no mutable state beyond
// the store client.
//
// # Example
//
//	policy := NewPolicy(st, DefaultPolicyConfig())
//	decision, err := policy.Classify(ctx, "What is the capital of France?")
//	switch decision.Source {
//	case SourceExactCache: // replay decision.CachedAnswer
//	case SourceAugmented:  // generate with decision.Neighbors
//	case SourceCold:       // generate bare
//	}
type Policy struct {
	store  store.InteractionStore
	config PolicyConfig
}

// NewPolicy creates a policy over the given store. Config values are
// validated and corrected if necessary.
func NewPolicy(st store.InteractionStore, config PolicyConfig) *Policy {
	return &Policy{
		store:  st,
		config: validatePolicyConfig(config),
	}
}

// validatePolicyConfig validates and corrects policy configuration values.
// Logs warnings for invalid values and applies sensible defaults.
func validatePolicyConfig(config PolicyConfig) PolicyConfig {
	defaults := DefaultPolicyConfig()

	if config.TopK < 1 {
		slog.Warn("Invalid TopK config, using default",
			"provided", config.TopK, "default", defaults.TopK)
		config.TopK = defaults.TopK
	}

	if config.Threshold <= 0 {
		slog.Warn("Invalid Threshold config, using default",
			"provided", config.Threshold, "default", defaults.Threshold)
		config.Threshold = defaults.Threshold
	}

	return config
}

// Classify decides the retrieval path for a question.
//
// # Description
//
// Runs the exact lookup first: a literal question match (limit 1, first
// ranked record on multiple hits) short-circuits to exact_cache and no
// generation happens for the turn. Otherwise the question's K nearest
// neighbors are fetched and filtered by the strict distance threshold;
// a record exactly at the threshold is excluded. A non-empty survivor
// set yields augmented, an empty one yields cold. An empty store is a
// valid cold path, not an error.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - question: The literal user question, unnormalized.
//
// # Outputs
//
//   - Decision: The retrieval path plus its material.
//   - error: Non-nil only when the store itself fails; misses are not
//     errors.
//
// # Limitations
//
//   - Exact matching is literal. "What is X?" and "what is x" are
//     different cache keys.
func (p *Policy) Classify(ctx context.Context, question string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()

	exact, err := p.store.QueryExact(ctx, question, 1)
	if err != nil {
		return Decision{}, fmt.Errorf("exact lookup failed: %w", err)
	}
	if len(exact) > 0 {
		slog.Debug("Exact cache hit", "id", exact[0].ID)
		return Decision{
			Source:           SourceExactCache,
			CachedAnswer:     exact[0].Answer,
			CachedID:         exact[0].ID,
			CachedConfidence: exact[0].Confidence,
		}, nil
	}

	nearest, err := p.store.QueryNearest(ctx, question, p.config.TopK)
	if err != nil {
		return Decision{}, fmt.Errorf("nearest lookup failed: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(nearest))
	for _, hit := range nearest {
		if hit.Distance == nil {
			continue
		}
		if float64(*hit.Distance) >= p.config.Threshold {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Question: hit.Question,
			Answer:   hit.Answer,
			Distance: *hit.Distance,
		})
	}

	if len(neighbors) == 0 {
		slog.Debug("No neighbors under threshold, cold turn",
			"candidates", len(nearest), "threshold", p.config.Threshold)
		return Decision{Source: SourceCold}, nil
	}

	slog.Debug("Augmented turn", "neighbors", len(neighbors))
	return Decision{Source: SourceAugmented, Neighbors: neighbors}, nil
}

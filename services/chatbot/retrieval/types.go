// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"os"
	"strconv"
)

// Source labels the retrieval path a decision took.
type Source string

const (
	// SourceExactCache means a stored interaction matched the question
	// literally and its answer is replayed without generation.
	SourceExactCache Source = "exact_cache"

	// SourceAugmented means similar past interactions were found and
	// their answers feed the generation context.
	SourceAugmented Source = "augmented"

	// SourceCold means nothing relevant was found and generation runs
	// from the caller context alone.
	SourceCold Source = "cold"
)

// Decision is the outcome of classifying one question against the store.
//
// # Description
//
// Decision carries the retrieval path plus the material the path
// produced: the cached record for exact hits, or the surviving
// neighbors for augmented turns. Cold decisions carry neither.
//
// # Thread Safety
//
// Decision is a value type and safe for concurrent read access.
type Decision struct {
	// Source is the retrieval path taken.
	Source Source

	// CachedAnswer is the replayed answer for exact hits, empty otherwise.
	CachedAnswer string

	// CachedID is the store UUID of the exact-hit record.
	CachedID string

	// CachedConfidence is the confidence the exact-hit answer was
	// originally stored with.
	CachedConfidence float64

	// Neighbors are the similar interactions that survived the distance
	// threshold, ordered by distance ascending. Empty unless augmented.
	Neighbors []Neighbor
}

// Neighbor is one similar past interaction feeding an augmented turn.
type Neighbor struct {
	// Question is the stored question the neighbor was indexed under.
	Question string `json:"question"`

	// Answer is the stored answer, fed to generation as prior material.
	Answer string `json:"answer"`

	// Distance is the cosine distance to the current question.
	// Always strictly below the configured threshold.
	Distance float32 `json:"distance"`
}

// PolicyConfig holds configuration for retrieval classification.
//
// # Description
//
// PolicyConfig allows customization of the nearest-neighbor parameters.
// Default values are provided by DefaultPolicyConfig().
//
// # Example
//
//	config := DefaultPolicyConfig()
//	config.TopK = 8  // Widen the neighbor search
//	policy := NewPolicy(st, config)
type PolicyConfig struct {
	// TopK is the number of nearest neighbors requested before the
	// distance threshold is applied. Default: 4
	TopK int

	// Threshold is the exclusive cosine distance cutoff. Neighbors at
	// a distance greater than or equal to it are discarded; a neighbor
	// exactly at the threshold does not qualify. Default: 0.6
	Threshold float64
}

// DefaultPolicyConfig returns the default retrieval configuration.
//
// # Description
//
// Values can be overridden via environment variables:
//   - CHAT_RETRIEVAL_TOP_K (default: 4)
//   - CHAT_RETRIEVAL_THRESHOLD (default: 0.6)
//
// # Outputs
//
//   - PolicyConfig: Configuration with default or env-configured values.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		TopK:      getEnvInt("CHAT_RETRIEVAL_TOP_K", 4),
		Threshold: getEnvFloat("CHAT_RETRIEVAL_THRESHOLD", 0.6),
	}
}

// KnowledgeTopK returns how many knowledge documents each turn
// requests: CHAT_KNOWLEDGE_TOP_K when set, otherwise 5.
func KnowledgeTopK() int {
	return getEnvInt("CHAT_KNOWLEDGE_TOP_K", 5)
}

// getEnvInt returns an environment variable as int, or defaultVal if not set/invalid.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvFloat returns an environment variable as float64, or defaultVal if not set/invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

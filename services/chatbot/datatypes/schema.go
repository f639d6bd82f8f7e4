// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EnsureInteractionSchema creates the Interaction class if it does not
// already exist.
//
// # Description
//
// The class stores interactions with externally supplied vectors
// (vectorizer "none") and cosine distance, so query distances are
// cosine distances in [0, 2]. Creation is idempotent; an existing class
// is left untouched.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - client: Connected Weaviate client.
//
// # Outputs
//
//   - error: Non-nil if the existence check or creation call fails.
func EnsureInteractionSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(InteractionClass).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for class %s: %w", InteractionClass, err)
	}
	if exists {
		slog.Debug("Weaviate class already present", "class", InteractionClass)
		return nil
	}

	class := &models.Class{
		Class:       InteractionClass,
		Description: "A stored question/answer interaction with its embedding",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "thread_id", DataType: []string{"text"}},
			{Name: "question", DataType: []string{"text"}},
			{Name: "answer", DataType: []string{"text"}},
			{Name: "response", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "confidence", DataType: []string{"number"}},
			{Name: "timestamp", DataType: []string{"int"}},
		},
	}

	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", InteractionClass, err)
	}
	slog.Info("Created Weaviate class", "class", InteractionClass)
	return nil
}

// EnsureKnowledgeSchema creates the Knowledge class if it does not
// already exist. Same vector configuration as the Interaction class;
// creation is idempotent.
func EnsureKnowledgeSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(KnowledgeClass).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for class %s: %w", KnowledgeClass, err)
	}
	if exists {
		slog.Debug("Weaviate class already present", "class", KnowledgeClass)
		return nil
	}

	class := &models.Class{
		Class:       KnowledgeClass,
		Description: "A reference document that grounds generation, with its embedding",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "timestamp", DataType: []string{"int"}},
		},
	}

	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", KnowledgeClass, err)
	}
	slog.Info("Created Weaviate class", "class", KnowledgeClass)
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/dialogue"
	"github.com/paullosergio/chatbot/services/llm"
)

// llmGenerator adapts an LLMClient to the dialogue.Generator interface.
//
// # Description
//
// The generation context assembled from retrieval and caller input is
// rendered as a JSON system message ahead of the thread's message
// sequence, so the backing model sees prior answers and preferences as
// grounding material rather than as conversation turns.
type llmGenerator struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// Compile-time interface check
var _ dialogue.Generator = (*llmGenerator)(nil)

// NewLLMGenerator wraps an LLM client as a dialogue generator.
func NewLLMGenerator(client llm.LLMClient, params llm.GenerationParams) dialogue.Generator {
	return &llmGenerator{client: client, params: params}
}

// Generate renders the generation context and delegates to the client's
// chat endpoint.
func (g *llmGenerator) Generate(ctx context.Context, messages []datatypes.Message, genCtx map[string]interface{}) (string, error) {
	prompt := messages
	if len(genCtx) > 0 {
		rendered, err := json.Marshal(genCtx)
		if err != nil {
			return "", fmt.Errorf("failed to render generation context: %w", err)
		}
		prompt = append([]datatypes.Message{{
			Role:    datatypes.RoleSystem,
			Content: "Context for this conversation:\n" + string(rendered),
		}}, messages...)
	}

	return g.client.Chat(ctx, prompt, g.params)
}

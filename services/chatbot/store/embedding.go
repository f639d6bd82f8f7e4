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

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

// HTTPEmbedder computes embeddings via the sidecar embedding service.
type HTTPEmbedder struct{}

// Compile-time interface check
var _ EmbeddingProvider = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an embedder backed by the embedding service
// configured through EMBEDDING_SERVICE_URL.
func NewHTTPEmbedder() *HTTPEmbedder {
	return &HTTPEmbedder{}
}

// Embed computes a vector embedding for the given text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp datatypes.EmbeddingResponse
	if err := resp.GetWithContext(ctx, text); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	return resp.Vector, nil
}

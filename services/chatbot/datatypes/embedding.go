// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type EmbeddingRequest struct {
	Text string `json:"text"`
}

type EmbeddingResponse struct {
	Id        string    `json:"id"`
	Timestamp int       `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Dim       int       `json:"dim"`
}

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// GetWithContext requests an embedding for text from the embedding
// service named by EMBEDDING_SERVICE_URL and fills in the receiver.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - text: The text to embed.
//
// # Outputs
//
//   - error: Non-nil if the service is unreachable, returns a non-200
//     status, or the response body fails to parse.
//
// # Assumptions
//
//   - EMBEDDING_SERVICE_URL is set and points at a POST /embed endpoint.
func (e *EmbeddingResponse) GetWithContext(ctx context.Context, text string) error {
	embeddingServiceURL := os.Getenv("EMBEDDING_SERVICE_URL")
	embReq := EmbeddingRequest{Text: text}
	reqBody, err := json.Marshal(embReq)
	if err != nil {
		return fmt.Errorf("failed to marshal the embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, embeddingServiceURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to setup a new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make the request to the embedding service: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			slog.Warn("Failed to close embedding response body", "error", err)
		}
	}(resp.Body)

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("the response was not a 200 OK from the embedding service: %s, "+
			"%d", string(bodyBytes), resp.StatusCode)
	}

	if err := json.Unmarshal(bodyBytes, &e); err != nil {
		return fmt.Errorf("failed to parse the response from the embedding service %w", err)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// KnowledgeClass is the Weaviate class holding the knowledge base:
// reference documents that ground generation, separate from the
// interaction log.
const KnowledgeClass = "Knowledge"

// KnowledgeQueryResponse represents the response from querying the
// Knowledge class.
type KnowledgeQueryResponse struct {
	Get struct {
		Knowledge []KnowledgeResult `json:"Knowledge"`
	} `json:"Get"`
}

// KnowledgeResult represents a single knowledge document from a query.
type KnowledgeResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Timestamp  *int64 `json:"timestamp"`
	Additional struct {
		ID       string   `json:"id"`
		Distance *float32 `json:"distance"`
	} `json:"_additional"`
}

// KnowledgeProperties represents the properties for creating a
// Knowledge object. Content is both the stored document and the text
// that gets embedded; Source is free-form provenance ("faq",
// "manual-upload", a URL).
type KnowledgeProperties struct {
	Content   string `json:"content"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// ToMap converts KnowledgeProperties to map[string]interface{} for Weaviate.
func (p *KnowledgeProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":   p.Content,
		"source":    p.Source,
		"timestamp": p.Timestamp,
	}
}

// KnowledgeRequest is the payload for POST /v1/knowledge.
type KnowledgeRequest struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// KnowledgeResponse acknowledges an ingested document.
type KnowledgeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

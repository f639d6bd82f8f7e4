// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/services"
	"github.com/paullosergio/chatbot/services/chatbot/store"
)

// AddKnowledge processes POST /v1/knowledge.
//
// # Description
//
// Ingests one document into the knowledge base. Subsequent chat turns
// retrieve it by similarity and feed it to generation. Empty content is
// a 400; an unreachable store is a 503.
func AddKnowledge(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "AddKnowledge")
		defer span.End()

		var req datatypes.KnowledgeRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the knowledge request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		id, err := svc.AddKnowledge(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, services.ErrKnowledgeDisabled):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			case store.IsStoreUnavailable(err):
				slog.Error("Knowledge store unavailable", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge store unavailable"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusCreated, datatypes.KnowledgeResponse{ID: id, Status: "stored"})
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/services"
	"github.com/paullosergio/chatbot/services/chatbot/store"
)

var chatTracer = otel.Tracer("chatbot.handlers")

// HandleChatTurn processes POST /v1/chat.
//
// # Description
//
// Binds the turn request and runs it through the turn pipeline. A
// degraded turn is still a 200: the failure is reported in response
// metadata, not as an HTTP error. Invalid preference values are a 400;
// an unreachable interaction store is a 503.
func HandleChatTurn(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatTurn")
		defer span.End()

		var req datatypes.TurnRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, err := svc.HandleTurn(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case services.IsInvalidPreferenceError(err):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case store.IsStoreUnavailable(err):
				slog.Error("Interaction store unavailable", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "interaction store unavailable"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

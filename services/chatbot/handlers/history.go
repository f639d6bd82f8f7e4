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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/paullosergio/chatbot/services/chatbot/services"
)

// HandleHistory processes GET /v1/history.
//
// Accepts an optional ?limit=N query parameter. Entries come back
// newest first; records stored without a timestamp sort last.
func HandleHistory(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		resp, err := svc.GetHistory(c.Request.Context(), limit)
		if err != nil {
			slog.Error("Failed to project history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

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

	"github.com/paullosergio/chatbot/services/chatbot/services"
)

// ListThreads processes GET /v1/threads.
func ListThreads(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		threads, err := svc.ListThreads(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list threads", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list threads"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"threads": threads, "count": len(threads)})
	}
}

// GetThreadMessages processes GET /v1/threads/:threadId/messages.
//
// Returns the thread's committed message sequence. A thread with no
// committed turns returns an empty list, not a 404.
func GetThreadMessages(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		threadID := c.Param("threadId")
		messages, err := svc.ThreadMessages(c.Request.Context(), threadID)
		if err != nil {
			slog.Error("Failed to load thread messages", "threadID", threadID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load thread messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "messages": messages})
	}
}

// DeleteThread processes DELETE /v1/threads/:threadId.
//
// Removes the thread's stored interactions and its checkpoint.
func DeleteThread(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		threadID := c.Param("threadId")
		slog.Info("Received a request to delete a thread", "threadID", threadID)

		deleted, err := svc.DeleteThread(c.Request.Context(), threadID)
		if err != nil {
			slog.Error("Failed to delete thread", "threadID", threadID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fully delete thread"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":            "success",
			"deleted_thread_id": threadID,
			"deleted_count":     deleted,
		})
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paullosergio/chatbot/services/chatbot/handlers"
	"github.com/paullosergio/chatbot/services/chatbot/services"
)

// SetupRoutes registers all HTTP routes on the given router.
func SetupRoutes(router *gin.Engine, svc *services.TurnService, enableMetrics bool) {
	router.GET("/health", handlers.HealthCheck)

	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChatTurn(svc))
		v1.POST("/knowledge", handlers.AddKnowledge(svc))
		v1.GET("/history", handlers.HandleHistory(svc))
		// Thread administration routes
		threads := v1.Group("/threads")
		{
			threads.GET("", handlers.ListThreads(svc))
			threads.GET("/:threadId/messages", handlers.GetThreadMessages(svc))
			threads.DELETE("/:threadId", handlers.DeleteThread(svc))
		}
	}
}

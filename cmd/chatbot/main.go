// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command chatbot starts the conversational assistant HTTP server.
//
// This is the main entry point for the containerized chatbot service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - CHATBOT_CONFIG: Path to optional YAML config file
//   - CHATBOT_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - openai, anthropic, ollama (default: ollama)
//   - EMBEDDING_BACKEND_TYPE: Embedding provider - http, openai, ollama (default: http)
//   - EMBEDDING_SERVICE_URL: Sidecar embedding service URL (required for http backend)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - CHECKPOINT_DB_PATH: Directory for thread checkpoint files (optional)
//   - CHATBOT_LOG_DIR: Directory for file logging (optional, stderr-only if unset)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: chatbot-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o chatbot ./cmd/chatbot
//
//	# Run
//	./chatbot
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/paullosergio/chatbot/cmd/chatbot/config"
	"github.com/paullosergio/chatbot/pkg/logging"
	"github.com/paullosergio/chatbot/services/chatbot"
)

func main() {
	// Optional YAML config file supplies base values; environment
	// variables always win.
	fileCfg, err := config.Load(os.Getenv("CHATBOT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}

	// Setup structured logging
	logger := logging.New(logging.Config{
		Service: "chatbot",
		JSON:    true,
		LogDir:  getEnvString("CHATBOT_LOG_DIR", fileCfg.LogDir),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := chatbot.Config{
		Port:             getEnvInt("CHATBOT_PORT", fileCfg.Port),
		LLMBackend:       getEnvString("LLM_BACKEND_TYPE", fileCfg.LLMBackend),
		EmbeddingBackend: getEnvString("EMBEDDING_BACKEND_TYPE", fileCfg.EmbeddingBackend),
		WeaviateURL:      getEnvString("WEAVIATE_SERVICE_URL", fileCfg.WeaviateURL),
		CheckpointPath:   getEnvString("CHECKPOINT_DB_PATH", fileCfg.CheckpointPath),
		OTelEndpoint:     getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", fileCfg.OTelEndpoint),
		GinMode:          getEnvString("GIN_MODE", fileCfg.GinMode),
	}

	slog.Info("Starting chatbot",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := chatbot.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create chatbot: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Chatbot error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

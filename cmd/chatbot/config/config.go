// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the optional chatbot YAML config file.
//
// The file supplies base values for the server; environment variables
// always take precedence over it. A missing file is not an error, the
// defaults simply apply.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the server settings that can be supplied from a
// YAML file instead of the environment.
type FileConfig struct {
	Port             int    `yaml:"port"`
	LLMBackend       string `yaml:"llm_backend"`
	EmbeddingBackend string `yaml:"embedding_backend"`
	WeaviateURL      string `yaml:"weaviate_url"`
	CheckpointPath   string `yaml:"checkpoint_db_path"`
	OTelEndpoint     string `yaml:"otel_endpoint"`
	LogDir           string `yaml:"log_dir"`
	GinMode          string `yaml:"gin_mode"`
}

// Default returns the built-in base configuration.
func Default() FileConfig {
	return FileConfig{
		Port:             12310,
		LLMBackend:       "ollama",
		EmbeddingBackend: "http",
		OTelEndpoint:     "chatbot-otel-collector:4317",
	}
}

// Load reads the YAML config at path on top of the defaults.
//
// # Inputs
//   - path: location of the YAML file. Empty or missing paths return
//     the defaults unchanged.
//
// # Outputs
//   - FileConfig: merged configuration
//   - error: non-nil when the file exists but cannot be read or parsed
func Load(path string) (FileConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command navigator starts the insurance navigator HTTP server.
//
// It reads configuration from environment variables and blocks until the
// server stops.
//
// # Environment Variables
//
//   - NAVIGATOR_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama (default: ollama)
//   - EMBEDDING_BACKEND_TYPE: embedding provider - openai, http (default: http)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - SEARCH_SERVICE_URL: SearxNG-compatible search endpoint (optional)
//   - BUFFER_DB_PATH: write-ahead buffer directory (default: ./data/buffer)
//   - GUARDRAIL_BLOCKLIST_PATH: YAML phrase blocklist (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: navigator-otel-collector:4317)
//
// # Usage
//
//	go build -o navigator ./cmd/navigator
//	./navigator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := navigator.Config{
		Port:                   getEnvInt("NAVIGATOR_PORT", 12310),
		LLMBackend:             getEnvString("LLM_BACKEND_TYPE", "ollama"),
		EmbedderBackend:        getEnvString("EMBEDDING_BACKEND_TYPE", "http"),
		WeaviateURL:            os.Getenv("WEAVIATE_SERVICE_URL"),
		SearchServiceURL:       os.Getenv("SEARCH_SERVICE_URL"),
		BufferDBPath:           getEnvString("BUFFER_DB_PATH", "./data/buffer"),
		GuardrailBlocklistPath: os.Getenv("GUARDRAIL_BLOCKLIST_PATH"),
		OTelEndpoint:           getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "navigator-otel-collector:4317"),
		GinMode:                os.Getenv("GIN_MODE"),
	}

	slog.Info("Starting navigator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"embedder_backend", cfg.EmbedderBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := navigator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create navigator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Navigator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid integer environment variable, using default",
			"key", key, "default", defaultValue)
	}
	return defaultValue
}

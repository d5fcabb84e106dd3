// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the Afyaflow orchestrator HTTP server.
//
// This is the main entry point for the containerized service. It reads
// configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: model provider - local, openai (default: local)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - EMBEDDING_SERVICE_URL: embedding service base URL (required)
//   - FULFILLMENT_SERVICE_URL: fulfillment service base URL (optional;
//     ordering tools are disabled when unset)
//   - TRIAGE_CLASSIFIER_PATH: verified triage classifier binary (optional)
//   - SESSION_DB_PATH: Badger session directory (default: ./data/sessions)
//   - SESSION_TTL_HOURS: session idle lifetime in hours (default: 24)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector
//     (default: afyaflow-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/afyaflow/afyaflow/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:           getEnvInt("ORCHESTRATOR_PORT", 12310),
		LLMBackend:     getEnvString("LLM_BACKEND_TYPE", "local"),
		WeaviateURL:    os.Getenv("WEAVIATE_SERVICE_URL"),
		EmbeddingURL:   os.Getenv("EMBEDDING_SERVICE_URL"),
		FulfillmentURL: os.Getenv("FULFILLMENT_SERVICE_URL"),
		ClassifierPath: os.Getenv("TRIAGE_CLASSIFIER_PATH"),
		BadgerPath:     getEnvString("SESSION_DB_PATH", "./data/sessions"),
		SessionTTL:     time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		OTelEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "afyaflow-otel-collector:4317"),
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
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

// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval provides the knowledge retrieval engine: query
// embedding, filtered vector search, and the post-top-k quality gate.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmbeddingProvider converts text to a fixed-length vector.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// maxEmbedBytes truncates oversized queries before embedding. The embedding
// service has its own input cap; truncating here avoids a round trip.
const maxEmbedBytes = 8 * 1024

// HTTPEmbedder implements EmbeddingProvider against the external embedding
// service's /embed endpoint.
type HTTPEmbedder struct {
	httpClient *http.Client
	url        string
}

var _ EmbeddingProvider = (*HTTPEmbedder)(nil)

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	Dim    int       `json:"dim"`
}

// NewHTTPEmbedder creates an embedder for the given service URL.
func NewHTTPEmbedder(url string) (*HTTPEmbedder, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("embedding service URL not configured")
	}
	return &HTTPEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
	}, nil
}

// Embed implements EmbeddingProvider.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedBytes {
		text = text[:maxEmbedBytes]
	}

	reqBody, err := json.Marshal(embeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s",
			resp.StatusCode, string(bodyBytes))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(bodyBytes, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embResp.Vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return embResp.Vector, nil
}

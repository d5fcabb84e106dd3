// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// Ingestor writes knowledge documents into the vector store.
//
// # Description
//
// Ingestion embeds the document content with the same provider the search
// path uses, then inserts the document with its vector. Documents embedded
// by a different model would rank nonsensically, so the two paths share one
// EmbeddingProvider.
type Ingestor struct {
	embedder EmbeddingProvider
	client   *weaviate.Client
}

// NewIngestor creates an ingestor over the given embedder and client.
func NewIngestor(embedder EmbeddingProvider, client *weaviate.Client) *Ingestor {
	return &Ingestor{embedder: embedder, client: client}
}

// Create embeds and stores one document, returning its assigned id.
//
// # Inputs
//
//   - ctx: Request context.
//   - req: Validated document fields.
//
// # Outputs
//
//   - string: The new document's UUID.
//   - error: Non-nil on embedding or storage failure.
func (ing *Ingestor) Create(ctx context.Context, req datatypes.CreateDocumentRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieval.ingest", trace.WithAttributes(
		attribute.String("content_type", req.ContentType),
	))
	defer span.End()

	vector, err := ing.embedder.Embed(ctx, req.Content)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to embed document: %w", err)
	}

	id := uuid.NewString()
	properties := map[string]interface{}{
		"title":            req.Title,
		"content":          req.Content,
		"content_type":     req.ContentType,
		"source_name":      req.SourceName,
		"source_version":   req.SourceVersion,
		"source_publisher": req.SourcePublisher,
		"created_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if req.CountryContextID != "" {
		properties["country_context_id"] = req.CountryContextID
	}
	if len(req.Conditions) > 0 {
		properties["conditions"] = req.Conditions
	}

	_, err = ing.client.Data().Creator().
		WithClassName("KnowledgeDocument").
		WithID(id).
		WithProperties(properties).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to store document: %w", err)
	}

	slog.Info("Knowledge document stored",
		"id", id,
		"content_type", req.ContentType,
		"country", req.CountryContextID)
	return id, nil
}

// Delete removes one document by id. Deleting an unknown id is an error
// surfaced to the caller.
func (ing *Ingestor) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}

	err := ing.client.Data().Deleter().
		WithClassName("KnowledgeDocument").
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	slog.Info("Knowledge document deleted", "id", id)
	return nil
}

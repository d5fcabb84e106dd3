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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/observability"
)

var tracer = otel.Tracer("afyaflow.orchestrator.retrieval")

// DefaultLimit is the top-k selected before the quality gate when the
// request does not specify one.
const DefaultLimit = 5

// DefaultMinSimilarity is the quality-gate floor when the request does not
// specify one.
const DefaultMinSimilarity = 0.5

// Filters are the facet predicates pushed down to the vector store.
//
// Semantics:
//
//   - ContentTypes: document content_type must be one of these (empty: no
//     content-type filter).
//   - CountryContextID: document country must equal this, or be null when
//     IncludeGlobal is set (empty: no country filter at all).
//   - Conditions: document condition tags must OVERLAP this set, not be a
//     subset of it (empty: no condition filter).
type Filters struct {
	ContentTypes     []string
	CountryContextID string
	IncludeGlobal    bool
	Conditions       []string
}

// Searcher executes a ranked vector query with pushed-down filters.
//
// Results come back ordered by descending certainty, at most limit of them.
// An empty corpus yields an empty slice, not an error.
type Searcher interface {
	Search(ctx context.Context, vector []float32, f Filters, limit int) ([]datatypes.KnowledgeDocumentResult, error)
}

// Engine turns a natural-language query into a filtered, similarity-ranked
// set of knowledge documents.
//
// # Description
//
// The engine embeds the query, delegates the filtered top-k vector search
// to its Searcher, then applies the quality gate: any of the top-k whose
// certainty falls below MinSimilarity is dropped. The gate runs after top-k
// selection, so fewer than limit results can come back even when
// lower-similarity matches exist elsewhere in the corpus. That ordering is
// a deliberate precision tradeoff; the engine never re-queries to backfill.
//
// # Thread Safety
//
// Engine is safe for concurrent use.
type Engine struct {
	embedder EmbeddingProvider
	searcher Searcher
	metrics  *observability.Metrics
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder EmbeddingProvider, searcher Searcher) *Engine {
	return &Engine{
		embedder: embedder,
		searcher: searcher,
	}
}

// WithMetrics attaches quality-gate instrumentation and returns the engine.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// Search executes the retrieval pipeline for one request.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - req: Validated search request. Zero Limit and MinSimilarity take the
//     package defaults.
//
// # Outputs
//
//   - []datatypes.DocumentView: Gated results in similarity order, possibly
//     empty. Similarity is rounded for display.
//   - error: Non-nil on validation, embedding, or search failure.
func (e *Engine) Search(ctx context.Context, req datatypes.SearchRequest) ([]datatypes.DocumentView, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()

	if err := datatypes.ValidateContentTypes(req.ContentTypes); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	minSimilarity := req.MinSimilarity
	if minSimilarity == 0 {
		minSimilarity = DefaultMinSimilarity
	}

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Float64("min_similarity", minSimilarity),
		attribute.String("country", req.CountryContextID),
	)

	vector, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		slog.Error("Failed to embed search query", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	f := Filters{
		ContentTypes:     req.ContentTypes,
		CountryContextID: req.CountryContextID,
		IncludeGlobal:    req.IncludeGlobal,
		Conditions:       req.Conditions,
	}

	results, err := e.searcher.Search(ctx, vector, f, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	views := gateResults(results, minSimilarity)
	if e.metrics != nil {
		e.metrics.RecordRetrieval(len(views), len(results)-len(views))
	}

	slog.Debug("Retrieval complete",
		"candidates", len(results),
		"returned", len(views),
		"min_similarity", minSimilarity)
	span.SetAttributes(attribute.Int("results", len(views)))
	return views, nil
}

// gateResults applies the post-top-k quality gate and converts surviving
// results to display views.
func gateResults(results []datatypes.KnowledgeDocumentResult, minSimilarity float64) []datatypes.DocumentView {
	views := make([]datatypes.DocumentView, 0, len(results))
	for _, r := range results {
		var similarity float64
		if r.Additional.Certainty != nil {
			similarity = float64(*r.Additional.Certainty)
		}
		if similarity < minSimilarity {
			continue
		}

		view := datatypes.DocumentView{
			Title:            r.Title,
			Content:          r.Content,
			ContentType:      r.ContentType,
			CountryContextID: r.CountryContextID,
			Conditions:       r.Conditions,
			Similarity:       similarity,
			SourceName:       r.SourceName,
			SourceVersion:    r.SourceVersion,
			SourcePublisher:  r.SourcePublisher,
		}
		view.Similarity = view.RoundedSimilarity()
		views = append(views, view)
	}
	return views
}

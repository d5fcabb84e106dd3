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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// WeaviateSearcher implements Searcher against the KnowledgeDocument class.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying Weaviate client handles
// connection pooling.
type WeaviateSearcher struct {
	client *weaviate.Client
}

var _ Searcher = (*WeaviateSearcher)(nil)

// NewWeaviateSearcher creates a searcher over the given client.
func NewWeaviateSearcher(client *weaviate.Client) *WeaviateSearcher {
	return &WeaviateSearcher{client: client}
}

// Search implements Searcher.
//
// # Description
//
// Builds the where-filter from f, runs a nearVector query over
// KnowledgeDocument requesting certainty (always in [0, 1] regardless of
// distance metric), and parses the response with the typed parser. Weaviate
// returns results already ranked by certainty descending.
func (s *WeaviateSearcher) Search(ctx context.Context, vector []float32, f Filters, limit int) ([]datatypes.KnowledgeDocumentResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.WeaviateSearch")
	defer span.End()

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "content"},
		{Name: "content_type"},
		{Name: "country_context_id"},
		{Name: "conditions"},
		{Name: "source_name"},
		{Name: "source_version"},
		{Name: "source_publisher"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	query := s.client.GraphQL().Get().
		WithClassName("KnowledgeDocument").
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if where := buildWhere(f); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("Weaviate knowledge search failed", "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	return parsed.Get.KnowledgeDocument, nil
}

// buildWhere combines the facet predicates into a single where-filter.
// Returns nil when no predicate applies.
func buildWhere(f Filters) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if len(f.ContentTypes) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"content_type"}).
			WithOperator(filters.ContainsAny).
			WithValueText(f.ContentTypes...))
	}

	if f.CountryContextID != "" {
		countryEq := filters.Where().
			WithPath([]string{"country_context_id"}).
			WithOperator(filters.Equal).
			WithValueString(f.CountryContextID)

		if f.IncludeGlobal {
			countryNull := filters.Where().
				WithPath([]string{"country_context_id"}).
				WithOperator(filters.IsNull).
				WithValueBoolean(true)
			operands = append(operands, filters.Where().
				WithOperator(filters.Or).
				WithOperands([]*filters.WhereBuilder{countryEq, countryNull}))
		} else {
			operands = append(operands, countryEq)
		}
	}

	if len(f.Conditions) > 0 {
		// Overlap semantics: any shared tag matches.
		operands = append(operands, filters.Where().
			WithPath([]string{"conditions"}).
			WithOperator(filters.ContainsAny).
			WithValueText(f.Conditions...))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// ProviderFinder looks up care providers in the directory.
type ProviderFinder interface {
	FindProviders(ctx context.Context, specialty, countryContextID string, limit int) ([]datatypes.ProviderResult, error)
}

// WeaviateProviderFinder implements ProviderFinder over the Provider class.
type WeaviateProviderFinder struct {
	client *weaviate.Client
}

var _ ProviderFinder = (*WeaviateProviderFinder)(nil)

// NewWeaviateProviderFinder creates a finder over the given client.
func NewWeaviateProviderFinder(client *weaviate.Client) *WeaviateProviderFinder {
	return &WeaviateProviderFinder{client: client}
}

// FindProviders implements ProviderFinder.
//
// Specialty and country filters are both optional; with neither set the
// query returns directory entries up to limit in storage order.
func (f *WeaviateProviderFinder) FindProviders(ctx context.Context, specialty, countryContextID string, limit int) ([]datatypes.ProviderResult, error) {
	if limit <= 0 {
		limit = 5
	}

	fields := []graphql.Field{
		{Name: "name"},
		{Name: "facility"},
		{Name: "specialty"},
		{Name: "country_context_id"},
		{Name: "services"},
		{Name: "phone"},
	}

	query := f.client.GraphQL().Get().
		WithClassName("Provider").
		WithFields(fields...).
		WithLimit(limit)

	var operands []*filters.WhereBuilder
	if specialty != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"specialty"}).
			WithOperator(filters.Equal).
			WithValueString(specialty))
	}
	if countryContextID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"country_context_id"}).
			WithOperator(filters.Equal).
			WithValueString(countryContextID))
	}
	switch len(operands) {
	case 0:
	case 1:
		query = query.WithWhere(operands[0])
	default:
		query = query.WithWhere(filters.Where().
			WithOperator(filters.And).
			WithOperands(operands))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider lookup failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProviderQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider results: %w", err)
	}
	return parsed.Get.Provider, nil
}

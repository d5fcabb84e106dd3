// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package triage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"golang.org/x/sync/singleflight"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// ProfileResolver looks up stored demographics for a user.
//
// A missing profile is (nil, nil), not an error: the triage service treats
// unresolvable age/gender as a fallback condition, not a failure.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID string) (*datatypes.ProfileResult, error)
}

// WeaviateProfileResolver implements ProfileResolver over the UserProfile
// class. Concurrent lookups for the same user share one in-flight query.
type WeaviateProfileResolver struct {
	client *weaviate.Client
	group  singleflight.Group
}

var _ ProfileResolver = (*WeaviateProfileResolver)(nil)

// NewWeaviateProfileResolver creates a resolver over the given client.
func NewWeaviateProfileResolver(client *weaviate.Client) *WeaviateProfileResolver {
	return &WeaviateProfileResolver{client: client}
}

// Resolve implements ProfileResolver.
func (r *WeaviateProfileResolver) Resolve(ctx context.Context, userID string) (*datatypes.ProfileResult, error) {
	v, err, _ := r.group.Do(userID, func() (any, error) {
		return r.lookup(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	profile, ok := v.(*datatypes.ProfileResult)
	if !ok {
		return nil, nil
	}
	return profile, nil
}

func (r *WeaviateProfileResolver) lookup(ctx context.Context, userID string) (*datatypes.ProfileResult, error) {
	where := filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(userID)

	fields := []graphql.Field{
		{Name: "user_id"},
		{Name: "age"},
		{Name: "gender"},
		{Name: "country_context_id"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName("UserProfile").
		WithFields(fields...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to query user profile", "user_id", userID, "error", err)
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProfileQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile results: %w", err)
	}
	if len(parsed.Get.UserProfile) == 0 {
		return nil, nil
	}
	profile := parsed.Get.UserProfile[0]
	return &profile, nil
}

// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the expected
// response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if the response is nil, carries GraphQL errors, or
//     parsing fails.
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Typed Query Responses
// =============================================================================

// KnowledgeQueryResponse is the shape of a KnowledgeDocument nearVector query.
type KnowledgeQueryResponse struct {
	Get struct {
		KnowledgeDocument []KnowledgeDocumentResult `json:"KnowledgeDocument"`
	} `json:"Get"`
}

// KnowledgeDocumentResult is a single knowledge document from a query.
// Certainty is requested instead of distance because it is always in [0, 1]
// regardless of the configured distance metric.
type KnowledgeDocumentResult struct {
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	ContentType      string   `json:"content_type"`
	CountryContextID string   `json:"country_context_id"`
	Conditions       []string `json:"conditions"`
	SourceName       string   `json:"source_name"`
	SourceVersion    string   `json:"source_version"`
	SourcePublisher  string   `json:"source_publisher"`
	Additional       struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// ProfileQueryResponse is the shape of a UserProfile lookup.
type ProfileQueryResponse struct {
	Get struct {
		UserProfile []ProfileResult `json:"UserProfile"`
	} `json:"Get"`
}

// ProfileResult is a single user profile from a query.
type ProfileResult struct {
	UserID           string `json:"user_id"`
	Age              int    `json:"age"`
	Gender           string `json:"gender"`
	CountryContextID string `json:"country_context_id"`
}

// ProviderQueryResponse is the shape of a Provider directory query.
type ProviderQueryResponse struct {
	Get struct {
		Provider []ProviderResult `json:"Provider"`
	} `json:"Get"`
}

// ProviderResult is a single care provider from the directory.
type ProviderResult struct {
	Name             string   `json:"name"`
	Facility         string   `json:"facility"`
	Specialty        string   `json:"specialty"`
	CountryContextID string   `json:"country_context_id"`
	Services         []string `json:"services"`
	Phone            string   `json:"phone"`
}

// InteractionQueryResponse is the shape of an Interaction log query, used by
// the retention sweep in the ttl package.
type InteractionQueryResponse struct {
	Get struct {
		Interaction []InteractionResult `json:"Interaction"`
	} `json:"Get"`
}

// InteractionResult is a single logged interaction.
type InteractionResult struct {
	UserInput       string   `json:"user_input"`
	ProtocolInvoked string   `json:"protocol_invoked"`
	RiskLevel       string   `json:"risk_level"`
	Recommendations string   `json:"recommendations"`
	ToolsCalled     []string `json:"tools_called"`
	Timestamp       int64    `json:"timestamp"`
	Additional      struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

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
	"fmt"
	"math"
)

// =============================================================================
// Content Type Vocabulary
// =============================================================================

// Knowledge document content types. The vocabulary is closed: search requests
// naming anything else are rejected with a validation error rather than
// silently matching nothing.
const (
	ContentTypeGuideline = "guideline"
	ContentTypeProtocol  = "protocol"
	ContentTypeEmergency = "emergency"
	ContentTypeAlgorithm = "algorithm"
	ContentTypeReference = "reference"
)

// knownContentTypes is the closed set accepted by ValidateContentTypes.
var knownContentTypes = map[string]bool{
	ContentTypeGuideline: true,
	ContentTypeProtocol:  true,
	ContentTypeEmergency: true,
	ContentTypeAlgorithm: true,
	ContentTypeReference: true,
}

// ValidateContentTypes rejects any content type outside the closed vocabulary.
//
// # Outputs
//
//   - error: Non-nil naming the first unknown type, nil for an empty slice.
func ValidateContentTypes(types []string) error {
	for _, ct := range types {
		if !knownContentTypes[ct] {
			return fmt.Errorf("unknown content_type %q", ct)
		}
	}
	return nil
}

// =============================================================================
// Retrieval Types
// =============================================================================

// SearchRequest is the body for POST /v1/documents/search.
//
// # Fields
//
//   - Query: Required. Natural-language query to embed and rank against.
//   - Limit: Top-k to select before the quality gate. Default 5.
//   - ContentTypes: Optional closed-vocabulary filter.
//   - CountryContextID: Optional locale filter. Empty means no country
//     filtering at all.
//   - Conditions: Optional condition tags; documents match on set overlap,
//     not subset.
//   - MinSimilarity: Quality gate applied after top-k selection. Default 0.5.
//   - IncludeGlobal: When a country is requested, also admit documents with
//     no country restriction.
type SearchRequest struct {
	Query            string   `json:"query" validate:"required,maxbytes"`
	Limit            int      `json:"limit" validate:"gte=0,lte=50"`
	ContentTypes     []string `json:"content_types"`
	CountryContextID string   `json:"country_context_id"`
	Conditions       []string `json:"conditions"`
	MinSimilarity    float64  `json:"min_similarity" validate:"gte=0,lte=1"`
	IncludeGlobal    bool     `json:"include_global"`
}

// Validate validates the SearchRequest, including the content-type vocabulary.
func (r *SearchRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	return ValidateContentTypes(r.ContentTypes)
}

// DocumentView is one retrieval result. Similarity is the Weaviate certainty
// for the match, rounded for display via RoundedSimilarity.
type DocumentView struct {
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	ContentType      string   `json:"content_type"`
	CountryContextID string   `json:"country_context_id,omitempty"`
	Conditions       []string `json:"conditions,omitempty"`
	Similarity       float64  `json:"similarity"`
	SourceName       string   `json:"source_name,omitempty"`
	SourceVersion    string   `json:"source_version,omitempty"`
	SourcePublisher  string   `json:"source_publisher,omitempty"`
}

// RoundedSimilarity returns the similarity rounded to three decimal places.
func (d *DocumentView) RoundedSimilarity() float64 {
	return math.Round(d.Similarity*1000) / 1000
}

// SourceInfo is a citation record extracted from knowledge-search tool
// results. Request-scoped: rebuilt fresh each orchestration cycle and
// forwarded to the interaction log, never persisted with the session.
type SourceInfo struct {
	Title       string  `json:"title"`
	SourceName  string  `json:"source_name,omitempty"`
	ContentType string  `json:"content_type"`
	Similarity  float64 `json:"similarity"`
}

// SearchResponse is the body returned by POST /v1/documents/search.
type SearchResponse struct {
	Results []DocumentView `json:"results"`
	Count   int            `json:"count"`
}

// =============================================================================
// Document Ingestion Types
// =============================================================================

// CreateDocumentRequest is the body for POST /v1/documents. Ingestion embeds
// Content and upserts the document with its vector.
type CreateDocumentRequest struct {
	Title            string   `json:"title" validate:"required,max=512"`
	Content          string   `json:"content" validate:"required"`
	ContentType      string   `json:"content_type" validate:"required"`
	CountryContextID string   `json:"country_context_id"`
	Conditions       []string `json:"conditions"`
	SourceName       string   `json:"source_name"`
	SourceVersion    string   `json:"source_version"`
	SourcePublisher  string   `json:"source_publisher"`
}

// Validate validates the CreateDocumentRequest fields.
func (r *CreateDocumentRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	return ValidateContentTypes([]string{r.ContentType})
}

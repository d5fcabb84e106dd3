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
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// boolPtr is a helper for the schema builders below.
func boolPtr(b bool) *bool {
	p := new(bool)
	*p = b
	return p
}

// GetKnowledgeDocumentSchema returns the class definition for retrievable
// knowledge units.
//
// Vectorizer is "none": vectors are computed by the external embedding
// service at ingestion time and supplied explicitly on insert and query.
func GetKnowledgeDocumentSchema() *models.Class {
	return &models.Class{
		Class:       "KnowledgeDocument",
		Description: "A retrievable clinical knowledge unit with provenance.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Short document title.",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The main content of the document.",
				Tokenization: "word",
			},
			{
				Name:            "content_type",
				DataType:        []string{"text"},
				Description:     "Closed vocabulary: guideline, protocol, emergency, algorithm, reference.",
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{
				Name:            "country_context_id",
				DataType:        []string{"text"},
				Description:     "Locale restriction. Null means globally applicable.",
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{
				Name:            "conditions",
				DataType:        []string{"text[]"},
				Description:     "Condition tags. Matching is set overlap.",
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{
				Name:         "source_name",
				DataType:     []string{"text"},
				Description:  "Provenance: source name.",
				Tokenization: "field",
			},
			{
				Name:         "source_version",
				DataType:     []string{"text"},
				Description:  "Provenance: source version.",
				Tokenization: "field",
			},
			{
				Name:         "source_publisher",
				DataType:     []string{"text"},
				Description:  "Provenance: publisher.",
				Tokenization: "field",
			},
		},
	}
}

// GetUserProfileSchema returns the class definition for stored demographics
// used to resolve age/gender during triage.
func GetUserProfileSchema() *models.Class {
	return &models.Class{
		Class:       "UserProfile",
		Description: "Stored demographics for age/gender resolution.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{Name: "age", DataType: []string{"int"}},
			{
				Name:         "gender",
				DataType:     []string{"text"},
				Tokenization: "field",
			},
			{
				Name:         "country_context_id",
				DataType:     []string{"text"},
				Tokenization: "field",
			},
		},
	}
}

// GetProviderSchema returns the class definition for the care provider
// directory queried by the find_providers tool.
func GetProviderSchema() *models.Class {
	return &models.Class{
		Class:       "Provider",
		Description: "Care provider directory entry.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "name", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "facility", DataType: []string{"text"}, Tokenization: "word"},
			{
				Name:            "specialty",
				DataType:        []string{"text"},
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{
				Name:            "country_context_id",
				DataType:        []string{"text"},
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{
				Name:            "services",
				DataType:        []string{"text[]"},
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{Name: "phone", DataType: []string{"text"}, Tokenization: "field"},
		},
	}
}

// GetInteractionSchema returns the class definition for the interaction log
// sink. Records here are fire-and-forget and swept by the retention job.
func GetInteractionSchema() *models.Class {
	return &models.Class{
		Class:       "Interaction",
		Description: "Per-turn interaction record for audit and analytics.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{Name: "user_input", DataType: []string{"text"}, Tokenization: "word"},
			{
				Name:         "protocol_invoked",
				DataType:     []string{"text"},
				Tokenization: "field",
			},
			{
				Name:            "risk_level",
				DataType:        []string{"text"},
				IndexFilterable: boolPtr(true),
				Tokenization:    "field",
			},
			{Name: "recommendations", DataType: []string{"text"}, Tokenization: "word"},
			{
				Name:         "tools_called",
				DataType:     []string{"text[]"},
				Tokenization: "field",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"int"},
				IndexFilterable: boolPtr(true),
			},
		},
	}
}

// EnsureSchema creates any missing classes. Existing classes are left
// untouched; creation failures are logged and skipped so the service can run
// against a partially provisioned instance.
func EnsureSchema(client *weaviate.Client) {
	classes := []*models.Class{
		GetKnowledgeDocumentSchema(),
		GetUserProfileSchema(),
		GetProviderSchema(),
		GetInteractionSchema(),
	}

	for _, class := range classes {
		exists, err := client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).
			Do(context.Background())
		if err != nil {
			slog.Warn("Failed to check class existence", "class", class.Class, "error", err)
			continue
		}
		if exists {
			continue
		}

		if err := client.Schema().ClassCreator().
			WithClass(class).
			Do(context.Background()); err != nil {
			slog.Warn("Failed to create class", "class", class.Class, "error", err)
			continue
		}
		slog.Info("Created Weaviate class", "class", class.Class)
	}
}

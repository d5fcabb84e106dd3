// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/retrieval"
)

// SearchDocuments runs an embedding-ranked search over the knowledge base.
func SearchDocuments(engine *retrieval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SearchRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results, err := engine.Search(c.Request.Context(), req)
		if err != nil {
			slog.Error("Knowledge search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.SearchResponse{
			Results: results,
			Count:   len(results),
		})
	}
}

// CreateDocument embeds and stores one knowledge document.
func CreateDocument(ingestor *retrieval.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := ingestor.Create(c.Request.Context(), req)
		if err != nil {
			slog.Error("Document ingestion failed", "title", req.Title, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status": "success",
			"id":     id,
		})
	}
}

// DeleteDocument removes one knowledge document by id.
func DeleteDocument(ingestor *retrieval.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("documentId")

		if err := ingestor.Delete(c.Request.Context(), id); err != nil {
			slog.Error("Document deletion failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "success",
			"deleted_id": id,
		})
	}
}

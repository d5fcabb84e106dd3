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

	"github.com/afyaflow/afyaflow/services/orchestrator/session"
)

// GetSessionHistory returns the stored turn history for a user. A missing
// or expired session is an empty history, not a 404; the distinction is
// invisible to the conversation anyway.
func GetSessionHistory(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		turns, err := store.Load(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to load session history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
			"turns":   turns,
			"count":   len(turns),
		})
	}
}

// GetSessionMetadata returns the summary of a stored session without its
// turns. 404 when no session exists.
func GetSessionMetadata(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		meta, err := store.Metadata(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to load session metadata", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session metadata"})
			return
		}
		if meta == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No session for user"})
			return
		}

		c.JSON(http.StatusOK, meta)
	}
}

// DeleteSession removes a user's stored history immediately, ahead of its
// TTL. This is the user-facing erasure path.
func DeleteSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		slog.Info("Received a request to delete a session", "user_id", userID)

		if err := store.Clear(c.Request.Context(), userID); err != nil {
			slog.Error("Failed to delete session", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          "success",
			"deleted_user_id": userID,
		})
	}
}

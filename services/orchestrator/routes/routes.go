// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afyaflow/afyaflow/services/orchestrator/agent"
	"github.com/afyaflow/afyaflow/services/orchestrator/handlers"
	"github.com/afyaflow/afyaflow/services/orchestrator/interaction"
	"github.com/afyaflow/afyaflow/services/orchestrator/observability"
	"github.com/afyaflow/afyaflow/services/orchestrator/retrieval"
	"github.com/afyaflow/afyaflow/services/orchestrator/session"
	"github.com/afyaflow/afyaflow/services/orchestrator/triage"
)

// Deps carries the wired services the HTTP surface is built on.
type Deps struct {
	Store     session.Store
	Agent     *agent.Engine
	Recorder  interaction.Recorder
	Triage    *triage.Service
	Retrieval *retrieval.Engine
	Ingestor  *retrieval.Ingestor
	Metrics   *observability.Metrics
}

// SetupRoutes registers the orchestrator's HTTP surface on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(deps.Store, deps.Agent, deps.Recorder, deps.Metrics))
		v1.POST("/triage", handlers.HandleTriage(deps.Triage))

		v1.POST("/documents/search", handlers.SearchDocuments(deps.Retrieval))
		v1.POST("/documents", handlers.CreateDocument(deps.Ingestor))
		v1.DELETE("/documents/:documentId", handlers.DeleteDocument(deps.Ingestor))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:userId/history", handlers.GetSessionHistory(deps.Store))
			sessions.GET("/:userId/metadata", handlers.GetSessionMetadata(deps.Store))
			sessions.DELETE("/:userId", handlers.DeleteSession(deps.Store))
		}
	}
}

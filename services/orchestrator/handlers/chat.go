// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the orchestrator's HTTP
// surface.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/afyaflow/afyaflow/services/orchestrator/agent"
	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/interaction"
	"github.com/afyaflow/afyaflow/services/orchestrator/observability"
	"github.com/afyaflow/afyaflow/services/orchestrator/session"
	"github.com/afyaflow/afyaflow/services/orchestrator/tools"
)

// systemPrompt frames every new conversation. It is stored as the first
// turn of the session so the model sees consistent instructions across
// restarts.
const systemPrompt = `You are a careful clinical assistant for community health.
Ground every clinical statement in the search_knowledge tool; if no relevant
document is found, say so plainly and advise seeing a health worker. Use
triage_assess once you have gathered the structured vitals answers, or with
your best urgency judgment when the user cannot answer them. If triage is
red, instruct the user to seek emergency care immediately; do not place
orders. Never invent citations, dosages, or availability.`

// fallbackAnswer is returned when the orchestration cycle cannot produce an
// answer. The user must always get text, and an emergency must never be
// left hanging on an internal failure.
const fallbackAnswer = `I'm sorry, I couldn't process that right now. Please try again in a moment. ` +
	`If this is an emergency, stop and seek care at your nearest health facility immediately.`

// HandleChat runs one conversational turn.
//
// # Description
//
// Loads the session history, appends the user's message, runs the bounded
// tool-calling cycle, persists the updated history, and records the
// interaction asynchronously. Engine failures degrade to fallbackAnswer
// rather than a bare 5xx: the conversational contract is that the user
// always receives text.
func HandleChat(store session.Store, engine *agent.Engine, recorder interaction.Recorder, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		history, err := store.Load(c.Request.Context(), req.UserID)
		if err != nil {
			slog.Error("Failed to load session", "user_id", req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}
		if len(history) == 0 {
			history = append(history, datatypes.NewSystemTurn(systemPrompt))
		}
		history = append(history, datatypes.NewUserTurn(req.Message))

		rc := tools.RequestContext{
			UserID:           req.UserID,
			Age:              req.Age,
			Gender:           req.Gender,
			CountryContextID: req.CountryContextID,
		}

		outcome, err := engine.Run(c.Request.Context(), rc, history)
		if err != nil {
			if errors.Is(err, agent.ErrToolBudget) {
				slog.Warn("Turn hit the tool iteration ceiling", "user_id", req.UserID)
			} else {
				slog.Error("Orchestration cycle failed", "user_id", req.UserID, "error", err)
			}
			// The user turn is still part of the conversation; keep it so
			// a retry has the full context.
			if saveErr := store.Save(c.Request.Context(), req.UserID, history); saveErr != nil {
				slog.Error("Failed to save session after cycle failure",
					"user_id", req.UserID, "error", saveErr)
			}
			if metrics != nil {
				metrics.RecordTurn(time.Since(start).Seconds(), false)
			}
			c.JSON(http.StatusOK, datatypes.ChatResponse{
				Answer:      fallbackAnswer,
				UserID:      req.UserID,
				Sources:     []datatypes.SourceInfo{},
				ToolsCalled: []string{},
				Timestamp:   time.Now().Unix(),
			})
			return
		}

		if err := store.Save(c.Request.Context(), req.UserID, outcome.Turns); err != nil {
			// The answer is already computed; losing one save is recoverable,
			// failing the response is not.
			slog.Error("Failed to save session", "user_id", req.UserID, "error", err)
		}

		recorder.Record(interaction.Record{
			UserID:          req.UserID,
			UserInput:       req.Message,
			ProtocolInvoked: topSourceTitle(outcome.Sources),
			RiskLevel:       string(outcome.RiskLevel),
			Recommendations: outcome.Answer,
			ToolsCalled:     outcome.ToolsCalled,
			Timestamp:       time.Now().UTC(),
		})

		if metrics != nil {
			metrics.RecordTurn(time.Since(start).Seconds(), true)
		}

		c.JSON(http.StatusOK, datatypes.ChatResponse{
			Answer:      outcome.Answer,
			UserID:      req.UserID,
			Sources:     emptyIfNil(outcome.Sources),
			ToolsCalled: emptyIfNilStrings(outcome.ToolsCalled),
			RiskLevel:   string(outcome.RiskLevel),
			Timestamp:   time.Now().Unix(),
		})
	}
}

// topSourceTitle returns the highest-ranked citation title, if any.
func topSourceTitle(sources []datatypes.SourceInfo) string {
	if len(sources) == 0 {
		return ""
	}
	return sources[0].Title
}

func emptyIfNil(sources []datatypes.SourceInfo) []datatypes.SourceInfo {
	if sources == nil {
		return []datatypes.SourceInfo{}
	}
	return sources
}

func emptyIfNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

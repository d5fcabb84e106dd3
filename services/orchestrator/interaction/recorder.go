// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interaction records completed assistant turns for later analysis.
//
// Recording is strictly fire-and-forget: a failed write is logged and
// dropped, and must never delay or fail the chat response that produced it.
package interaction

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Record is one completed user/assistant exchange.
//
// # Fields
//
//   - UserID: Owner of the conversation.
//   - UserInput: The user's message for this turn.
//   - ProtocolInvoked: Title of the top-ranked knowledge document consulted,
//     empty when no search ran.
//   - RiskLevel: Triage outcome for the turn, empty when no triage ran.
//   - Recommendations: The assistant's final answer text.
//   - ToolsCalled: Tool names in invocation order.
//   - Timestamp: Turn completion time. Zero means now.
type Record struct {
	UserID          string
	UserInput       string
	ProtocolInvoked string
	RiskLevel       string
	Recommendations string
	ToolsCalled     []string
	Timestamp       time.Time
}

// Recorder persists interaction records.
type Recorder interface {
	// Record schedules the write and returns immediately.
	Record(rec Record)
}

// === Weaviate implementation ===

// WeaviateRecorder writes records to the Interaction class asynchronously.
type WeaviateRecorder struct {
	client  *weaviate.Client
	timeout time.Duration
}

var _ Recorder = (*WeaviateRecorder)(nil)

// NewWeaviateRecorder creates a recorder backed by the given client.
func NewWeaviateRecorder(client *weaviate.Client) *WeaviateRecorder {
	return &WeaviateRecorder{
		client:  client,
		timeout: 10 * time.Second,
	}
}

// Record writes the interaction on a background goroutine.
//
// # Limitations
//
// Failures are logged at warn level and otherwise discarded. There is no
// retry queue; a lost record is acceptable, a blocked response is not.
func (r *WeaviateRecorder) Record(rec Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		ts := rec.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		toolsCalled := rec.ToolsCalled
		if toolsCalled == nil {
			toolsCalled = []string{}
		}

		_, err := r.client.Data().Creator().
			WithClassName("Interaction").
			WithID(uuid.NewString()).
			WithProperties(map[string]interface{}{
				"user_id":          rec.UserID,
				"user_input":       rec.UserInput,
				"protocol_invoked": rec.ProtocolInvoked,
				"risk_level":       rec.RiskLevel,
				"recommendations":  rec.Recommendations,
				"tools_called":     toolsCalled,
				"timestamp":        ts.UnixMilli(),
			}).
			Do(ctx)
		if err != nil {
			slog.Warn("Failed to record interaction", "user_id", rec.UserID, "error", err)
		}
	}()
}

// === No-op implementation ===

// NopRecorder discards every record. Used when no Weaviate client is
// configured and in tests that do not assert on recording.
type NopRecorder struct{}

var _ Recorder = (*NopRecorder)(nil)

// Record discards the record.
func (NopRecorder) Record(Record) {}

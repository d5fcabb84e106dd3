// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the conversation turn model and the request/response
// types for the chat endpoint. For retrieval types see rag.go, for triage
// types see triage.go.
package datatypes

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

// Turn roles. Tool turns carry a ToolCallID linking back to the assistant
// turn that requested the call.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	// MaxMessageContentBytes is the maximum size of a single user message.
	// Byte length, not rune count, to bound memory for adversarial payloads.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxStoredTurns is the maximum number of turns persisted per session.
	// Older turns are dropped from the head before save.
	MaxStoredTurns = 200
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the MaxMessageContentBytes cap on a string field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Turn Model
// =============================================================================

// ToolCall is a structured request, emitted by the model, to invoke a named
// capability with JSON-encoded arguments.
//
// # Fields
//
//   - ID: Unique identifier for this call. Tool-result turns reference it
//     via Turn.ToolCallID.
//   - Name: Registered tool name (e.g. "search_knowledge").
//   - Args: Raw JSON argument object as emitted by the model. Validation and
//     coercion happen in the tools executor, not here.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Turn is one message in a conversation.
//
// # Description
//
// Turn is the unit of session history. Exactly one of the optional linkage
// fields is populated depending on role:
//
//   - assistant turns that request tools carry ToolCalls (Content may be empty)
//   - tool turns carry ToolCallID referencing a prior assistant ToolCall.ID
//   - system/user turns carry neither
//
// Turns are append-only within a processing cycle and serialize round-trip
// exactly through the session store.
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewUserTurn builds a user turn.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewSystemTurn builds a system turn.
func NewSystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// NewToolTurn builds a tool-result turn linked to the originating call.
func NewToolTurn(toolCallID, content string) Turn {
	return Turn{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// IsKnownRole reports whether role is one of the four turn roles.
func IsKnownRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// =============================================================================
// Chat Endpoint Types
// =============================================================================

// ChatRequest is the body for POST /v1/chat.
//
// # Fields
//
//   - UserID: Required. Stable identifier owning the session history.
//   - Message: Required. The user's message for this turn. Capped at 32KB.
//   - Age, Gender: Optional demographics for this turn. When present they
//     take precedence over the stored user profile during triage.
//   - CountryContextID: Optional locale for knowledge retrieval (e.g. "ke").
//     Empty means no country filtering.
//
// # Validation
//
// Validate() must be called after JSON binding; binding alone does not
// enforce the tags.
type ChatRequest struct {
	UserID           string `json:"user_id" validate:"required,max=128"`
	Message          string `json:"message" validate:"required,maxbytes"`
	Age              int    `json:"age" validate:"gte=0,lte=130"`
	Gender           string `json:"gender" validate:"omitempty,max=32"`
	CountryContextID string `json:"country_context_id" validate:"omitempty,max=8"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ChatResponse is the body returned by POST /v1/chat.
//
// Sources and ToolsCalled are rebuilt fresh per orchestration cycle; they
// reflect only the tools exercised while answering this message, never the
// whole session.
type ChatResponse struct {
	Answer      string       `json:"answer"`
	UserID      string       `json:"user_id"`
	Sources     []SourceInfo `json:"sources"`
	ToolsCalled []string     `json:"tools_called"`
	RiskLevel   string       `json:"risk_level,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// SessionMetadata summarizes a stored session without its turns.
type SessionMetadata struct {
	UserID       string    `json:"user_id"`
	MessageCount int       `json:"message_count"`
	FirstTs      time.Time `json:"first_ts"`
	LastTs       time.Time `json:"last_ts"`
}

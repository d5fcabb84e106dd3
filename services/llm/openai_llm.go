// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/tools"
)

// OpenAIClient implements ChatClient against any OpenAI-compatible
// chat-completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ ChatClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for api.openai.com.
//
// # Description
//
// Reads OPENAI_API_KEY from the environment, falling back to the container
// secret at /run/secrets/openai_api_key. OPENAI_MODEL selects the model,
// defaulting to gpt-4o-mini.
//
// # Outputs
//
//   - *OpenAIClient: Ready to use client.
//   - error: Non-nil if no API key can be found.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// NewLocalClient creates a client for a local OpenAI-compatible server
// (llama.cpp, vLLM).
//
// # Description
//
// Reads LLM_SERVICE_URL_BASE for the server base URL (the /v1 suffix is
// appended if missing) and LLM_MODEL_NAME for the model identifier the
// server expects.
func NewLocalClient() (*OpenAIClient, error) {
	baseURL := strings.TrimSuffix(os.Getenv("LLM_SERVICE_URL_BASE"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	model := os.Getenv("LLM_MODEL_NAME")
	if model == "" {
		model = "local"
	}

	config := openai.DefaultConfig("not-needed")
	config.BaseURL = baseURL

	slog.Info("Initializing local LLM client", "base_url", baseURL, "model", model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Chat implements the ChatClient interface.
//
// # Description
//
// Converts the turn list and tool schemas to the chat-completions wire
// format, performs one completion call, and converts the response back into
// an assistant Turn. Tool-call linkage (tool_calls on assistant turns,
// tool_call_id on tool turns) survives the round trip exactly.
func (o *OpenAIClient) Chat(ctx context.Context, turns []datatypes.Turn,
	toolDefs []tools.Definition, params GenerationParams) (*datatypes.Turn, error) {

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(turns),
		Tools:    toOpenAITools(toolDefs),
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	slog.Debug("Calling chat completion", "model", o.model, "turns", len(turns), "tools", len(toolDefs))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("Chat completion call failed", "error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("Chat completion returned no choices")
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	turn := fromOpenAIMessage(resp.Choices[0].Message)
	slog.Debug("Received chat completion",
		"finish_reason", resp.Choices[0].FinishReason,
		"tool_calls", len(turn.ToolCalls))
	return &turn, nil
}

// =============================================================================
// Wire Conversion
// =============================================================================

func toOpenAIMessages(turns []datatypes.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msg := openai.ChatCompletionMessage{
			Role:       t.Role,
			Content:    t.Content,
			ToolCallID: t.ToolCallID,
		}
		for _, tc := range t.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func toOpenAITools(defs []tools.Definition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.JSONSchema(),
			},
		})
	}
	return out
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) datatypes.Turn {
	turn := datatypes.Turn{
		Role:    datatypes.RoleAssistant,
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, datatypes.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return turn
}

// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the language model client abstraction.
//
// Backends speak the OpenAI chat-completions wire format. The "openai"
// backend targets api.openai.com; the "local" backend targets any
// OpenAI-compatible server (llama.cpp, vLLM) via a custom base URL. Both
// support tool calling, which the orchestration loop depends on.
package llm

import (
	"context"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/tools"
)

// GenerationParams are optional sampling parameters. Nil fields use the
// backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ChatClient defines the standard interface for any LLM backend.
//
// # Description
//
// Chat sends an ordered turn list plus bound tool schemas and returns the
// assistant turn the model produced: content, tool calls, or both. Errors
// are not retried here; retry policy belongs to the caller.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, turns []datatypes.Turn, toolDefs []tools.Definition,
		params GenerationParams) (*datatypes.Turn, error)
}

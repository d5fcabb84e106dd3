// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the schema-validated tool registry and executor
// used by the orchestration loop.
//
// Each capability the language model may invoke is a Tool: a named callable
// with a declared parameter schema. The Registry maps names to tools; the
// Executor validates and coerces arguments, enforces per-tool timeouts, and
// converts failures into a structured result rather than crashing the loop.
package tools

import (
	"context"
	"time"
)

// =============================================================================
// Parameter Schema
// =============================================================================

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeFloat  ParamType = "number"
	ParamTypeBool   ParamType = "boolean"
	ParamTypeArray  ParamType = "array"
	ParamTypeObject ParamType = "object"
)

// ParamDef declares one tool parameter.
//
// # Fields
//
//   - Type: Declared type, used for validation and coercion.
//   - Description: Shown to the model in the bound tool schema.
//   - Required: Missing required parameters fail validation.
//   - Default: Applied when an optional parameter is absent.
//   - Enum: Closed set of accepted values, if any.
//   - Items: Element type for array parameters.
type ParamDef struct {
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Enum        []any
	Items       ParamType
}

// Definition describes a tool to the registry, the executor, and the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]ParamDef

	// SideEffects marks tools that change external state (orders,
	// referrals). Side-effecting tools are subject to risk gating in the
	// orchestration loop.
	SideEffects bool

	// Timeout bounds one execution. Zero means the executor default.
	Timeout time.Duration
}

// JSONSchema renders the parameter schema as a JSON-Schema object suitable
// for binding into a chat-completion tool definition.
func (d Definition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string

	for name, p := range d.Parameters {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == ParamTypeArray && p.Items != "" {
			prop["items"] = map[string]any{"type": string(p.Items)}
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// =============================================================================
// Tool Interface
// =============================================================================

// Result is the structured outcome of one tool execution.
//
// The orchestration loop serializes Result as the content of the tool turn
// and accumulates it in the per-cycle tool-output list. A failed execution
// still produces a Result (Success=false, Error set) so the model can see
// what went wrong and recover.
type Result struct {
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Tool is a named, schema-validated callable the orchestration loop may
// invoke on behalf of the language model.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the same Tool instance
// serves every session.
type Tool interface {
	// Name returns the registered tool name.
	Name() string

	// Definition returns the declared schema for this tool.
	Definition() Definition

	// Execute runs the tool with validated, coerced parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// =============================================================================
// Executor Options
// =============================================================================

// ExecutorOptions configures the Executor.
type ExecutorOptions struct {
	// DefaultTimeout bounds executions of tools that declare no timeout.
	DefaultTimeout time.Duration
}

// DefaultExecutorOptions returns production defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 30 * time.Second,
	}
}

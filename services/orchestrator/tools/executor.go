// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")

	// ErrExecutionFailed indicates tool execution failed.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")
)

// Executor handles tool invocations with validation and timeouts.
//
// # Thread Safety
//
// Executor is safe for concurrent use. Multiple tool executions can run
// simultaneously.
type Executor struct {
	registry *Registry
	options  ExecutorOptions
}

// NewExecutor creates a new tool executor.
//
// # Inputs
//
//   - registry: The tool registry.
//   - opts: Executor options (uses defaults if nil).
func NewExecutor(registry *Registry, opts *ExecutorOptions) *Executor {
	options := DefaultExecutorOptions()
	if opts != nil {
		options = *opts
	}
	return &Executor{
		registry: registry,
		options:  options,
	}
}

// Execute resolves the named tool, validates and coerces rawArgs against its
// declared schema, and runs it under a timeout.
//
// # Description
//
// rawArgs is the JSON argument object exactly as the model emitted it. The
// executor unmarshals it, applies defaults, coerces JSON numbers to the
// declared integer type, checks required fields and enums, then runs the
// tool under its declared timeout (or the executor default).
//
// # Outputs
//
//   - *Result: The execution result. Nil when error is non-nil.
//   - error: ErrToolNotFound, ErrValidationFailed, ErrTimeout, or
//     ErrExecutionFailed (wrapped with detail). Callers that must not crash
//     on a single tool failure convert the error into a structured failure
//     Result; see ErrorResult.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (*Result, error) {
	logger := slog.With("tool", name)

	tool, ok := e.registry.Get(name)
	if !ok {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	params, err := e.validateArgs(tool.Definition(), rawArgs)
	if err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	timeout := e.options.DefaultTimeout
	if tool.Definition().Timeout > 0 {
		timeout = tool.Definition().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	logger.Debug("Executing tool")

	result, err := tool.Execute(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("Tool execution timed out", "timeout", timeout)
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, name, timeout)
		}
		logger.Error("Tool execution failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	logger.Debug("Tool execution complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"success", result.Success)

	if result.ToolName == "" {
		result.ToolName = name
	}
	return result, nil
}

// ErrorResult converts an execution error into a structured failure Result.
// The orchestration loop uses this so a tool turn is always produced, never
// silently dropped.
func ErrorResult(name string, err error) *Result {
	return &Result{
		ToolName: name,
		Success:  false,
		Error:    err.Error(),
	}
}

// =============================================================================
// Argument Validation
// =============================================================================

// validateArgs unmarshals, defaults, coerces, and validates rawArgs against
// the declared parameter schema.
func (e *Executor) validateArgs(def Definition, rawArgs json.RawMessage) (map[string]any, error) {
	params := make(map[string]any)
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}

	for name, p := range def.Parameters {
		value, present := params[name]

		if !present || value == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", name)
			}
			if p.Default != nil {
				params[name] = p.Default
			}
			continue
		}

		coerced, err := coerceParam(p, value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		params[name] = coerced

		if len(p.Enum) > 0 && !enumContains(p.Enum, coerced) {
			return nil, fmt.Errorf("parameter %q: value %v not in enum", name, coerced)
		}
	}

	for name := range params {
		if _, declared := def.Parameters[name]; !declared {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
	}

	return params, nil
}

// coerceParam checks a value against its declared type, converting the JSON
// float64 representation of numbers to int where the schema says integer.
func coerceParam(p ParamDef, value any) (any, error) {
	switch p.Type {
	case ParamTypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil

	case ParamTypeInt:
		switch v := value.(type) {
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int(v), nil
		case int:
			return v, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", value)

	case ParamTypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)

	case ParamTypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", value)
		}
		return b, nil

	case ParamTypeArray:
		arr, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", value)
		}
		if p.Items != "" {
			elemDef := ParamDef{Type: p.Items}
			for i, elem := range arr {
				coerced, err := coerceParam(elemDef, elem)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				arr[i] = coerced
			}
		}
		return arr, nil

	case ParamTypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", value)
		}
		return obj, nil
	}

	return value, nil
}

// enumContains reports whether value matches an enum entry. Int/float64
// cross-matching covers coerced integers against float enum literals.
func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
		if ef, ok := e.(float64); ok {
			if vi, ok := value.(int); ok && ef == float64(vi) {
				return true
			}
		}
		if ei, ok := e.(int); ok {
			if vf, ok := value.(float64); ok && float64(ei) == vf {
				return true
			}
		}
	}
	return false
}

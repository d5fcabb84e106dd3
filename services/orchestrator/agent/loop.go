// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the tool-calling orchestration loop.
//
// # Description
//
// One chat turn is a bounded Reason/Act cycle: the model is called with the
// conversation and the bound tool schemas; if it asks for tools, each call
// is executed and its structured result appended as a tool turn; the cycle
// repeats until the model answers in plain text or the iteration ceiling is
// hit. A failed tool never aborts the cycle; the failure is serialized into
// the tool turn so the model can see it and recover.
//
// # Safety
//
// Once any triage result in the cycle is red, side-effecting fulfillment
// tools are refused for the remainder of the cycle. An emergency ends in an
// urgent-care instruction, not a delivery order.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/afyaflow/afyaflow/services/llm"
	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/observability"
	"github.com/afyaflow/afyaflow/services/orchestrator/tools"
)

var tracer = otel.Tracer("afyaflow.orchestrator.agent")

// DefaultMaxIterations bounds the Reason/Act cycle for one chat turn.
const DefaultMaxIterations = 8

// ErrToolBudget indicates the model kept requesting tools past the
// iteration ceiling without producing an answer.
var ErrToolBudget = errors.New("tool iteration budget exhausted")

// Engine runs the orchestration loop.
//
// # Thread Safety
//
// Engine is stateless between calls and safe for concurrent use; all
// per-turn state lives on the Run stack.
type Engine struct {
	client        llm.ChatClient
	registry      *tools.Registry
	executor      *tools.Executor
	metrics       *observability.Metrics
	params        llm.GenerationParams
	maxIterations int
}

// Options configures the Engine.
type Options struct {
	// Params are the generation parameters used for every model call.
	Params llm.GenerationParams

	// MaxIterations overrides DefaultMaxIterations when positive.
	MaxIterations int

	// Metrics receives loop instrumentation. Nil disables it.
	Metrics *observability.Metrics
}

// NewEngine creates an orchestration engine.
func NewEngine(client llm.ChatClient, registry *tools.Registry, executor *tools.Executor, opts Options) *Engine {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Engine{
		client:        client,
		registry:      registry,
		executor:      executor,
		metrics:       opts.Metrics,
		params:        opts.Params,
		maxIterations: maxIterations,
	}
}

// Outcome is the result of one completed chat turn.
//
// # Fields
//
//   - Answer: Final assistant text shown to the user.
//   - Turns: Input history plus every turn the cycle appended, in order.
//     This is what the caller persists.
//   - Sources: Citations accumulated from knowledge searches this cycle.
//   - ToolsCalled: Tool names in invocation order, duplicates preserved.
//   - RiskLevel: Highest-signal triage outcome seen this cycle; empty when
//     no triage ran.
type Outcome struct {
	Answer      string
	Turns       []datatypes.Turn
	Sources     []datatypes.SourceInfo
	ToolsCalled []string
	RiskLevel   datatypes.RiskLevel
}

// Run executes one bounded Reason/Act cycle.
//
// # Inputs
//
//   - ctx: Request context for cancellation and tracing.
//   - rc: Authenticated user identity and demographics. Attached to the
//     tool execution context; tools never take identity from the model.
//   - history: Conversation so far, ending with the new user turn.
//
// # Outputs
//
//   - *Outcome: Non-nil on success.
//   - error: ErrToolBudget when the ceiling is hit, or the model call error.
//     Tool failures are not errors here; they flow back to the model.
func (e *Engine) Run(ctx context.Context, rc tools.RequestContext, history []datatypes.Turn) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("user_id", rc.UserID),
		attribute.Int("history_turns", len(history)),
	))
	defer span.End()

	toolCtx := tools.WithRequestContext(ctx, rc)
	defs := e.registry.Definitions()
	sideEffects := sideEffectIndex(defs)

	outcome := &Outcome{
		Turns: append([]datatypes.Turn(nil), history...),
	}
	redSeen := false

	for i := 0; i < e.maxIterations; i++ {
		assistant, err := e.chat(ctx, outcome.Turns, defs)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		outcome.Turns = append(outcome.Turns, *assistant)

		if len(assistant.ToolCalls) == 0 {
			outcome.Answer = assistant.Content
			span.SetAttributes(
				attribute.Int("iterations", i+1),
				attribute.Int("tools_called", len(outcome.ToolsCalled)),
			)
			return outcome, nil
		}

		for _, call := range assistant.ToolCalls {
			result := e.invoke(toolCtx, call, redSeen && sideEffects[call.Name])
			outcome.ToolsCalled = append(outcome.ToolsCalled, call.Name)
			e.harvest(outcome, result, &redSeen)

			payload, err := json.Marshal(result)
			if err != nil {
				slog.Error("Failed to encode tool result", "tool", call.Name, "error", err)
				payload = []byte(`{"success":false,"error":"result encoding failed"}`)
			}
			outcome.Turns = append(outcome.Turns, datatypes.NewToolTurn(call.ID, string(payload)))
		}
	}

	span.RecordError(ErrToolBudget)
	return nil, fmt.Errorf("%w after %d iterations", ErrToolBudget, e.maxIterations)
}

// chat performs one instrumented model call.
func (e *Engine) chat(ctx context.Context, turns []datatypes.Turn, defs []tools.Definition) (*datatypes.Turn, error) {
	start := time.Now()
	assistant, err := e.client.Chat(ctx, turns, defs, e.params)
	if e.metrics != nil {
		e.metrics.RecordLLMCall(time.Since(start).Seconds())
	}
	return assistant, err
}

// invoke executes one tool call, converting every failure mode into a
// structured Result.
func (e *Engine) invoke(ctx context.Context, call datatypes.ToolCall, refused bool) *tools.Result {
	if refused {
		slog.Warn("Refusing fulfillment tool under red triage", "tool", call.Name)
		return &tools.Result{
			ToolName: call.Name,
			Success:  false,
			Error:    "declined: an emergency risk level is active for this conversation; direct the user to immediate in-person care instead",
		}
	}

	result, err := e.executor.Execute(ctx, call.Name, call.Args)
	if err != nil {
		result = tools.ErrorResult(call.Name, err)
	}
	if e.metrics != nil {
		e.metrics.RecordToolExecution(call.Name, result.Success)
	}
	return result
}

// harvest pulls citations and triage outcomes out of a tool result into the
// cycle accumulators.
func (e *Engine) harvest(outcome *Outcome, result *tools.Result, redSeen *bool) {
	if !result.Success {
		return
	}

	switch data := result.Data.(type) {
	case tools.KnowledgeSearchData:
		outcome.Sources = append(outcome.Sources, data.Sources...)

	case datatypes.TriageResult:
		outcome.RiskLevel = data.RiskLevel
		if data.RiskLevel == datatypes.RiskRed {
			*redSeen = true
		}
		if e.metrics != nil {
			e.metrics.RecordTriage(string(data.RiskLevel), string(data.VerificationMethod))
		}
	}
}

// sideEffectIndex maps tool names to their declared side-effect flag.
func sideEffectIndex(defs []tools.Definition) map[string]bool {
	index := make(map[string]bool, len(defs))
	for _, d := range defs {
		index[d.Name] = d.SideEffects
	}
	return index
}

// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// Tests for the tool-calling orchestration loop.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyaflow/afyaflow/services/llm"
	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/tools"
)

// scriptedClient replays a fixed sequence of assistant turns, one per call.
// When the script runs out it keeps returning the last turn.
type scriptedClient struct {
	script []datatypes.Turn
	calls  int
	err    error
}

func (s *scriptedClient) Chat(_ context.Context, _ []datatypes.Turn, _ []tools.Definition,
	_ llm.GenerationParams) (*datatypes.Turn, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls - 1
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	turn := s.script[i]
	return &turn, nil
}

// scriptedTool runs a fixed function under a fixed definition.
type scriptedTool struct {
	def tools.Definition
	run func(ctx context.Context, params map[string]any) (*tools.Result, error)
}

func (s *scriptedTool) Name() string                 { return s.def.Name }
func (s *scriptedTool) Definition() tools.Definition { return s.def }
func (s *scriptedTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	return s.run(ctx, params)
}

func assistantText(content string) datatypes.Turn {
	return datatypes.Turn{Role: datatypes.RoleAssistant, Content: content}
}

func assistantToolCall(id, name, args string) datatypes.Turn {
	return datatypes.Turn{
		Role: datatypes.RoleAssistant,
		ToolCalls: []datatypes.ToolCall{
			{ID: id, Name: name, Args: json.RawMessage(args)},
		},
	}
}

func newTestEngine(client llm.ChatClient, toolset ...tools.Tool) *Engine {
	registry := tools.NewRegistry()
	for _, t := range toolset {
		registry.Register(t)
	}
	executor := tools.NewExecutor(registry, nil)
	return NewEngine(client, registry, executor, Options{})
}

var testRC = tools.RequestContext{UserID: "u1", CountryContextID: "KE"}

// =============================================================================
// Plain Answers
// =============================================================================

func TestRun_ImmediateAnswer(t *testing.T) {
	client := &scriptedClient{script: []datatypes.Turn{assistantText("Drink fluids and rest.")}}
	engine := newTestEngine(client)

	history := []datatypes.Turn{datatypes.NewUserTurn("I have a mild cold")}
	outcome, err := engine.Run(context.Background(), testRC, history)

	require.NoError(t, err)
	assert.Equal(t, "Drink fluids and rest.", outcome.Answer)
	assert.Equal(t, 1, client.calls)
	require.Len(t, outcome.Turns, 2)
	assert.Equal(t, datatypes.RoleAssistant, outcome.Turns[1].Role)
	assert.Empty(t, outcome.ToolsCalled)
	assert.Empty(t, outcome.RiskLevel)
}

func TestRun_InputHistoryNotMutated(t *testing.T) {
	client := &scriptedClient{script: []datatypes.Turn{assistantText("ok")}}
	engine := newTestEngine(client)

	history := make([]datatypes.Turn, 0, 4)
	history = append(history, datatypes.NewUserTurn("hello"))
	_, err := engine.Run(context.Background(), testRC, history)

	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRun_ModelErrorPropagates(t *testing.T) {
	client := &scriptedClient{err: errors.New("backend unavailable")}
	engine := newTestEngine(client)

	_, err := engine.Run(context.Background(), testRC, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model call failed")
}

// =============================================================================
// Tool Cycles
// =============================================================================

func TestRun_SingleToolCallThenAnswer(t *testing.T) {
	searched := false
	search := &scriptedTool{
		def: tools.Definition{
			Name: "search_knowledge",
			Parameters: map[string]tools.ParamDef{
				"query": {Type: tools.ParamTypeString, Required: true},
			},
		},
		run: func(_ context.Context, params map[string]any) (*tools.Result, error) {
			searched = true
			return &tools.Result{
				Success: true,
				Data: tools.KnowledgeSearchData{
					Sources: []datatypes.SourceInfo{{Title: "Fever Guideline"}},
				},
			}, nil
		},
	}
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "search_knowledge", `{"query":"fever in children"}`),
		assistantText("Per the fever guideline, monitor temperature."),
	}}
	engine := newTestEngine(client, search)

	outcome, err := engine.Run(context.Background(), testRC,
		[]datatypes.Turn{datatypes.NewUserTurn("my child has a fever")})

	require.NoError(t, err)
	assert.True(t, searched)
	assert.Equal(t, []string{"search_knowledge"}, outcome.ToolsCalled)
	require.Len(t, outcome.Sources, 1)
	assert.Equal(t, "Fever Guideline", outcome.Sources[0].Title)

	// user, assistant(tool call), tool, assistant(answer)
	require.Len(t, outcome.Turns, 4)
	toolTurn := outcome.Turns[2]
	assert.Equal(t, datatypes.RoleTool, toolTurn.Role)
	assert.Equal(t, "call-1", toolTurn.ToolCallID)

	var result tools.Result
	require.NoError(t, json.Unmarshal([]byte(toolTurn.Content), &result))
	assert.True(t, result.Success)
}

func TestRun_ToolFailureFlowsBackToModel(t *testing.T) {
	broken := &scriptedTool{
		def: tools.Definition{Name: "search_knowledge"},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			return nil, errors.New("index offline")
		},
	}
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "search_knowledge", `{}`),
		assistantText("I could not look that up right now."),
	}}
	engine := newTestEngine(client, broken)

	outcome, err := engine.Run(context.Background(), testRC, nil)

	require.NoError(t, err)
	assert.Equal(t, "I could not look that up right now.", outcome.Answer)

	var result tools.Result
	require.NoError(t, json.Unmarshal([]byte(outcome.Turns[1].Content), &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "index offline")
}

func TestRun_UnknownToolProducesFailureTurn(t *testing.T) {
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "not_a_tool", `{}`),
		assistantText("done"),
	}}
	engine := newTestEngine(client)

	outcome, err := engine.Run(context.Background(), testRC, nil)

	require.NoError(t, err)
	var result tools.Result
	require.NoError(t, json.Unmarshal([]byte(outcome.Turns[1].Content), &result))
	assert.False(t, result.Success)
	assert.Equal(t, []string{"not_a_tool"}, outcome.ToolsCalled)
}

func TestRun_IterationCeiling(t *testing.T) {
	noop := &scriptedTool{
		def: tools.Definition{Name: "search_knowledge"},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			return &tools.Result{Success: true}, nil
		},
	}
	// Script never reaches a text answer.
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "search_knowledge", `{}`),
	}}
	engine := newTestEngine(client, noop)

	_, err := engine.Run(context.Background(), testRC, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolBudget)
	assert.Equal(t, DefaultMaxIterations, client.calls)
}

// =============================================================================
// Risk Gating
// =============================================================================

func TestRun_RedTriageRefusesSideEffectTools(t *testing.T) {
	triage := &scriptedTool{
		def: tools.Definition{Name: "triage_assess"},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			return &tools.Result{
				Success: true,
				Data: datatypes.TriageResult{
					RiskLevel:          datatypes.RiskRed,
					VerificationMethod: datatypes.VerificationVerified,
				},
			}, nil
		},
	}
	orderPlaced := false
	order := &scriptedTool{
		def: tools.Definition{Name: "order_pharmacy", SideEffects: true},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			orderPlaced = true
			return &tools.Result{Success: true}, nil
		},
	}
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "triage_assess", `{}`),
		assistantToolCall("call-2", "order_pharmacy", `{}`),
		assistantText("Go to the nearest emergency department now."),
	}}
	engine := newTestEngine(client, triage, order)

	outcome, err := engine.Run(context.Background(), testRC, nil)

	require.NoError(t, err)
	assert.False(t, orderPlaced)
	assert.Equal(t, datatypes.RiskRed, outcome.RiskLevel)

	var refusal tools.Result
	require.NoError(t, json.Unmarshal([]byte(outcome.Turns[3].Content), &refusal))
	assert.False(t, refusal.Success)
	assert.Contains(t, refusal.Error, "declined")
}

func TestRun_RedTriageStillAllowsReadOnlyTools(t *testing.T) {
	triage := &scriptedTool{
		def: tools.Definition{Name: "triage_assess"},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			return &tools.Result{
				Success: true,
				Data:    datatypes.TriageResult{RiskLevel: datatypes.RiskRed},
			}, nil
		},
	}
	searched := false
	search := &scriptedTool{
		def: tools.Definition{Name: "search_knowledge"},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			searched = true
			return &tools.Result{Success: true, Data: tools.KnowledgeSearchData{}}, nil
		},
	}
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "triage_assess", `{}`),
		assistantToolCall("call-2", "search_knowledge", `{}`),
		assistantText("Here is what to do on the way to the clinic."),
	}}
	engine := newTestEngine(client, triage, search)

	_, err := engine.Run(context.Background(), testRC, nil)

	require.NoError(t, err)
	assert.True(t, searched)
}

func TestRun_YellowTriageDoesNotGate(t *testing.T) {
	triage := &scriptedTool{
		def: tools.Definition{Name: "triage_assess"},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			return &tools.Result{
				Success: true,
				Data:    datatypes.TriageResult{RiskLevel: datatypes.RiskYellow},
			}, nil
		},
	}
	orderPlaced := false
	order := &scriptedTool{
		def: tools.Definition{Name: "order_pharmacy", SideEffects: true},
		run: func(context.Context, map[string]any) (*tools.Result, error) {
			orderPlaced = true
			return &tools.Result{Success: true}, nil
		},
	}
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "triage_assess", `{}`),
		assistantToolCall("call-2", "order_pharmacy", `{"items":[]}`),
		assistantText("Your order is placed; see a clinician within 24 hours."),
	}}
	engine := newTestEngine(client, triage, order)

	outcome, err := engine.Run(context.Background(), testRC, nil)

	require.NoError(t, err)
	assert.True(t, orderPlaced)
	assert.Equal(t, datatypes.RiskYellow, outcome.RiskLevel)
}

// =============================================================================
// Identity Plumbing
// =============================================================================

func TestRun_RequestContextReachesTools(t *testing.T) {
	var seen tools.RequestContext
	probe := &scriptedTool{
		def: tools.Definition{Name: "search_knowledge"},
		run: func(ctx context.Context, _ map[string]any) (*tools.Result, error) {
			seen, _ = tools.RequestContextFrom(ctx)
			return &tools.Result{Success: true}, nil
		},
	}
	client := &scriptedClient{script: []datatypes.Turn{
		assistantToolCall("call-1", "search_knowledge", `{}`),
		assistantText("done"),
	}}
	engine := newTestEngine(client, probe)

	_, err := engine.Run(context.Background(),
		tools.RequestContext{UserID: "u-42", Age: 29, Gender: "female", CountryContextID: "TZ"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "u-42", seen.UserID)
	assert.Equal(t, "TZ", seen.CountryContextID)
}

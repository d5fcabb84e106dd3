// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// Tests for the standard tool adapters.

package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// fakeSearcher captures the request it was handed and returns canned results.
type fakeSearcher struct {
	gotReq  datatypes.SearchRequest
	results []datatypes.DocumentView
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, req datatypes.SearchRequest) ([]datatypes.DocumentView, error) {
	f.gotReq = req
	return f.results, f.err
}

// fakeAssessor returns a canned triage result.
type fakeAssessor struct {
	gotReq datatypes.TriageRequest
	result datatypes.TriageResult
	err    error
}

func (f *fakeAssessor) Classify(_ context.Context, req datatypes.TriageRequest) (datatypes.TriageResult, error) {
	f.gotReq = req
	return f.result, f.err
}

func ctxWith(rc RequestContext) context.Context {
	return WithRequestContext(context.Background(), rc)
}

// =============================================================================
// search_knowledge
// =============================================================================

func TestSearchTool_CountryComesFromRequestContext(t *testing.T) {
	searcher := &fakeSearcher{}
	tool := NewSearchTool(searcher)

	ctx := ctxWith(RequestContext{UserID: "u1", CountryContextID: "KE"})
	_, err := tool.Execute(ctx, map[string]any{"query": "malaria dosing"})

	require.NoError(t, err)
	assert.Equal(t, "KE", searcher.gotReq.CountryContextID)
	assert.True(t, searcher.gotReq.IncludeGlobal)
	assert.Equal(t, "malaria dosing", searcher.gotReq.Query)
}

func TestSearchTool_NoCountryMeansNoGlobalFlag(t *testing.T) {
	searcher := &fakeSearcher{}
	tool := NewSearchTool(searcher)

	_, err := tool.Execute(ctxWith(RequestContext{UserID: "u1"}),
		map[string]any{"query": "fever"})

	require.NoError(t, err)
	assert.Empty(t, searcher.gotReq.CountryContextID)
	assert.False(t, searcher.gotReq.IncludeGlobal)
}

func TestSearchTool_BuildsSourcesFromResults(t *testing.T) {
	searcher := &fakeSearcher{
		results: []datatypes.DocumentView{
			{Title: "Malaria Protocol", SourceName: "MOH", ContentType: "protocol", Similarity: 0.87654},
		},
	}
	tool := NewSearchTool(searcher)

	result, err := tool.Execute(ctxWith(RequestContext{UserID: "u1"}),
		map[string]any{"query": "malaria"})

	require.NoError(t, err)
	data, ok := result.Data.(KnowledgeSearchData)
	require.True(t, ok)
	require.Len(t, data.Sources, 1)
	assert.Equal(t, "Malaria Protocol", data.Sources[0].Title)
	assert.InDelta(t, 0.877, data.Sources[0].Similarity, 1e-9)
}

func TestSearchTool_BackendErrorPropagates(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{err: errors.New("weaviate unreachable")})

	_, err := tool.Execute(ctxWith(RequestContext{UserID: "u1"}),
		map[string]any{"query": "x"})

	assert.Error(t, err)
}

// =============================================================================
// triage_assess
// =============================================================================

func TestTriageTool_RequiresRequestContext(t *testing.T) {
	tool := NewTriageTool(&fakeAssessor{})

	_, err := tool.Execute(context.Background(), map[string]any{})

	assert.ErrorIs(t, err, ErrNoRequestContext)
}

func TestTriageTool_ModelArgsOverrideContextDemographics(t *testing.T) {
	assessor := &fakeAssessor{result: datatypes.TriageResult{
		RiskLevel:          datatypes.RiskGreen,
		VerificationMethod: datatypes.VerificationVerified,
	}}
	tool := NewTriageTool(assessor)

	ctx := ctxWith(RequestContext{UserID: "u1", Age: 30, Gender: "female"})
	result, err := tool.Execute(ctx, map[string]any{
		"age":       float64(64),
		"breathing": true,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "u1", assessor.gotReq.UserID)
	assert.Equal(t, 64, assessor.gotReq.Age)
	assert.Equal(t, "female", assessor.gotReq.Gender)
	require.NotNil(t, assessor.gotReq.Vitals.Breathing)
	assert.True(t, *assessor.gotReq.Vitals.Breathing)
	assert.Nil(t, assessor.gotReq.Vitals.Pregnant)
}

func TestTriageTool_ResultCarriesTypedTriageData(t *testing.T) {
	tool := NewTriageTool(&fakeAssessor{result: datatypes.TriageResult{
		RiskLevel:          datatypes.RiskRed,
		VerificationMethod: datatypes.VerificationVerified,
	}})

	result, err := tool.Execute(ctxWith(RequestContext{UserID: "u1"}), map[string]any{})

	require.NoError(t, err)
	triage, ok := result.Data.(datatypes.TriageResult)
	require.True(t, ok)
	assert.Equal(t, datatypes.RiskRed, triage.RiskLevel)
}

// =============================================================================
// Order Item Parsing
// =============================================================================

func TestParseOrderItems(t *testing.T) {
	items, err := parseOrderItems([]any{
		map[string]any{"sku": "ORS-500", "quantity": float64(2)},
		map[string]any{"sku": "RDT-MAL"},
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, OrderItem{SKU: "ORS-500", Quantity: 2}, items[0])
	assert.Equal(t, OrderItem{SKU: "RDT-MAL", Quantity: 1}, items[1])
}

func TestParseOrderItems_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		value any
	}{
		{"empty list", []any{}},
		{"not a list", "ORS-500"},
		{"missing sku", []any{map[string]any{"quantity": float64(1)}}},
		{"zero quantity", []any{map[string]any{"sku": "X", "quantity": float64(0)}}},
		{"fractional quantity", []any{map[string]any{"sku": "X", "quantity": 1.5}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseOrderItems(tc.value)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Registration
// =============================================================================

func TestRegisterStandardTools_SkipsFulfillmentWhenUnconfigured(t *testing.T) {
	registry := NewRegistry()

	RegisterStandardTools(registry, Collaborators{
		Assessor: &fakeAssessor{},
		Searcher: &fakeSearcher{},
	})

	names := registry.Names()
	assert.Contains(t, names, "triage_assess")
	assert.Contains(t, names, "search_knowledge")
	assert.Contains(t, names, "find_providers")
	assert.NotContains(t, names, "create_referral")
	assert.NotContains(t, names, "order_commodities")
	assert.NotContains(t, names, "order_pharmacy")
}

func TestRegisterStandardTools_FullSet(t *testing.T) {
	registry := NewRegistry()

	RegisterStandardTools(registry, Collaborators{
		Assessor:    &fakeAssessor{},
		Searcher:    &fakeSearcher{},
		Fulfillment: NewFulfillmentClient("http://fulfillment:8080"),
	})

	assert.Len(t, registry.Names(), 6)
}

func TestOrderTool_MarkedSideEffecting(t *testing.T) {
	tool := NewCommodityOrderTool(NewFulfillmentClient("http://fulfillment:8080"))

	assert.True(t, tool.Definition().SideEffects)
	assert.True(t, NewReferralTool(NewFulfillmentClient("http://f")).Definition().SideEffects)
	assert.False(t, NewSearchTool(&fakeSearcher{}).Definition().SideEffects)
}

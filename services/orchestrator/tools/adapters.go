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
	"errors"
	"fmt"
	"time"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// ErrNoRequestContext indicates a tool needing user identity was invoked
// without a RequestContext attached to ctx.
var ErrNoRequestContext = errors.New("no request context attached")

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// TriageAssessor classifies a structured triage request.
type TriageAssessor interface {
	Classify(ctx context.Context, req datatypes.TriageRequest) (datatypes.TriageResult, error)
}

// KnowledgeSearcher runs an embedding-ranked search over the clinical
// knowledge base.
type KnowledgeSearcher interface {
	Search(ctx context.Context, req datatypes.SearchRequest) ([]datatypes.DocumentView, error)
}

// KnowledgeSearchData is the Data payload of a search_knowledge result. The
// orchestration loop reads Sources to accumulate citations for the response.
type KnowledgeSearchData struct {
	Results []datatypes.DocumentView `json:"results"`
	Sources []datatypes.SourceInfo   `json:"sources"`
}

// =============================================================================
// triage_assess
// =============================================================================

// TriageTool exposes triage classification to the model.
type TriageTool struct {
	assessor TriageAssessor
}

var _ Tool = (*TriageTool)(nil)

// NewTriageTool creates the triage_assess tool.
func NewTriageTool(assessor TriageAssessor) *TriageTool {
	return &TriageTool{assessor: assessor}
}

func (t *TriageTool) Name() string { return "triage_assess" }

func (t *TriageTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Assess clinical urgency from structured vitals. Call once all " +
			"six vitals questions have been answered, or with model_urgency when " +
			"structured answers cannot be gathered.",
		Parameters: map[string]ParamDef{
			"age":              {Type: ParamTypeInt, Description: "Patient age in years."},
			"gender":           {Type: ParamTypeString, Description: "Patient gender (male or female)."},
			"pregnant":         {Type: ParamTypeBool, Description: "Currently pregnant."},
			"breathing":        {Type: ParamTypeBool, Description: "Breathing normally."},
			"conscious":        {Type: ParamTypeBool, Description: "Fully conscious."},
			"walking":          {Type: ParamTypeBool, Description: "Able to walk unassisted."},
			"severe_symptom":   {Type: ParamTypeBool, Description: "Any severe symptom present."},
			"moderate_symptom": {Type: ParamTypeBool, Description: "Any moderate symptom present."},
			"model_urgency": {
				Type:        ParamTypeString,
				Description: "Urgency judged from conversation when vitals are unavailable.",
				Enum:        []any{"emergency", "urgent", "moderate", "routine", "self-care"},
			},
		},
		Timeout: 10 * time.Second,
	}
}

// Execute implements Tool.
func (t *TriageTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return nil, ErrNoRequestContext
	}

	req := datatypes.TriageRequest{
		UserID:       rc.UserID,
		Age:          rc.Age,
		Gender:       rc.Gender,
		ModelUrgency: strParam(params, "model_urgency"),
		Vitals: datatypes.Vitals{
			Pregnant:        boolPtrParam(params, "pregnant"),
			Breathing:       boolPtrParam(params, "breathing"),
			Conscious:       boolPtrParam(params, "conscious"),
			Walking:         boolPtrParam(params, "walking"),
			SevereSymptom:   boolPtrParam(params, "severe_symptom"),
			ModerateSymptom: boolPtrParam(params, "moderate_symptom"),
		},
	}
	if age, ok := intParam(params, "age"); ok {
		req.Age = age
	}
	if gender := strParam(params, "gender"); gender != "" {
		req.Gender = gender
	}

	result, err := t.assessor.Classify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("triage classification failed: %w", err)
	}
	return &Result{ToolName: t.Name(), Success: true, Data: result}, nil
}

// =============================================================================
// search_knowledge
// =============================================================================

// SearchTool exposes knowledge-base retrieval to the model.
type SearchTool struct {
	searcher KnowledgeSearcher
}

var _ Tool = (*SearchTool)(nil)

// NewSearchTool creates the search_knowledge tool.
func NewSearchTool(searcher KnowledgeSearcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (t *SearchTool) Name() string { return "search_knowledge" }

func (t *SearchTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Search clinical guidelines and protocols. Returns ranked " +
			"passages with citations; answer from these, never from memory.",
		Parameters: map[string]ParamDef{
			"query": {
				Type:        ParamTypeString,
				Description: "Natural-language search query.",
				Required:    true,
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum passages to return.",
				Default:     5,
			},
			"content_types": {
				Type:        ParamTypeArray,
				Items:       ParamTypeString,
				Description: "Restrict to content types: guideline, protocol, emergency, algorithm, reference.",
			},
			"conditions": {
				Type:        ParamTypeArray,
				Items:       ParamTypeString,
				Description: "Condition tags to match, e.g. malaria, hypertension.",
			},
			"min_similarity": {
				Type:        ParamTypeFloat,
				Description: "Relevance floor between 0 and 1.",
			},
		},
		Timeout: 15 * time.Second,
	}
}

// Execute implements Tool.
//
// The country scope always comes from the request context, never from the
// model, so one user cannot be steered onto another locale's protocols.
func (t *SearchTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	rc, _ := RequestContextFrom(ctx)

	req := datatypes.SearchRequest{
		Query:            strParam(params, "query"),
		ContentTypes:     strSliceParam(params, "content_types"),
		Conditions:       strSliceParam(params, "conditions"),
		CountryContextID: rc.CountryContextID,
		IncludeGlobal:    rc.CountryContextID != "",
	}
	if limit, ok := intParam(params, "limit"); ok {
		req.Limit = limit
	}
	if min, ok := floatParam(params, "min_similarity"); ok {
		req.MinSimilarity = min
	}

	results, err := t.searcher.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	sources := make([]datatypes.SourceInfo, 0, len(results))
	for i := range results {
		sources = append(sources, datatypes.SourceInfo{
			Title:       results[i].Title,
			SourceName:  results[i].SourceName,
			ContentType: results[i].ContentType,
			Similarity:  results[i].RoundedSimilarity(),
		})
	}

	return &Result{
		ToolName: t.Name(),
		Success:  true,
		Data:     KnowledgeSearchData{Results: results, Sources: sources},
	}, nil
}

// =============================================================================
// create_referral
// =============================================================================

// ReferralTool opens clinical referrals through the fulfillment service.
type ReferralTool struct {
	creator ReferralCreator
}

var _ Tool = (*ReferralTool)(nil)

// NewReferralTool creates the create_referral tool.
func NewReferralTool(creator ReferralCreator) *ReferralTool {
	return &ReferralTool{creator: creator}
}

func (t *ReferralTool) Name() string { return "create_referral" }

func (t *ReferralTool) Definition() Definition {
	return Definition{
		Name:        t.Name(),
		Description: "Open a referral to a health facility for in-person care.",
		Parameters: map[string]ParamDef{
			"reason": {
				Type:        ParamTypeString,
				Description: "Clinical reason for the referral.",
				Required:    true,
			},
			"facility_id": {
				Type:        ParamTypeString,
				Description: "Target facility, if already chosen.",
			},
			"urgency": {
				Type:        ParamTypeString,
				Description: "Referral urgency.",
				Enum:        []any{"red", "yellow", "green"},
			},
		},
		SideEffects: true,
	}
}

// Execute implements Tool.
func (t *ReferralTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return nil, ErrNoRequestContext
	}

	confirmation, err := t.creator.CreateReferral(ctx, ReferralRequest{
		UserID:     rc.UserID,
		FacilityID: strParam(params, "facility_id"),
		Reason:     strParam(params, "reason"),
		Urgency:    strParam(params, "urgency"),
	})
	if err != nil {
		return nil, err
	}
	return &Result{ToolName: t.Name(), Success: true, Data: confirmation}, nil
}

// =============================================================================
// order_commodities / order_pharmacy
// =============================================================================

// orderFunc is the shared call shape of the two order collaborators.
type orderFunc func(ctx context.Context, req OrderRequest) (*OrderConfirmation, error)

// OrderTool places commodity or pharmacy orders. The two registered order
// tools differ only in name, description, and backend call.
type OrderTool struct {
	name        string
	description string
	place       orderFunc
}

var _ Tool = (*OrderTool)(nil)

// NewCommodityOrderTool creates the order_commodities tool.
func NewCommodityOrderTool(orderer CommodityOrderer) *OrderTool {
	return &OrderTool{
		name:        "order_commodities",
		description: "Order health commodities (test kits, supplies) for delivery.",
		place:       orderer.OrderCommodities,
	}
}

// NewPharmacyOrderTool creates the order_pharmacy tool.
func NewPharmacyOrderTool(orderer PharmacyOrderer) *OrderTool {
	return &OrderTool{
		name:        "order_pharmacy",
		description: "Order pharmacy items for pickup or delivery.",
		place:       orderer.OrderPharmacy,
	}
}

func (t *OrderTool) Name() string { return t.name }

func (t *OrderTool) Definition() Definition {
	return Definition{
		Name:        t.name,
		Description: t.description,
		Parameters: map[string]ParamDef{
			"items": {
				Type:        ParamTypeArray,
				Items:       ParamTypeObject,
				Description: "Order lines, each {sku, quantity}.",
				Required:    true,
			},
			"notes": {
				Type:        ParamTypeString,
				Description: "Free-text note for the fulfillment team.",
			},
		},
		SideEffects: true,
	}
}

// Execute implements Tool.
func (t *OrderTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return nil, ErrNoRequestContext
	}

	items, err := parseOrderItems(params["items"])
	if err != nil {
		return nil, err
	}

	confirmation, err := t.place(ctx, OrderRequest{
		UserID: rc.UserID,
		Items:  items,
		Notes:  strParam(params, "notes"),
	})
	if err != nil {
		return nil, err
	}
	return &Result{ToolName: t.name, Success: true, Data: confirmation}, nil
}

// parseOrderItems converts the validated items array into order lines.
func parseOrderItems(value any) ([]OrderItem, error) {
	raw, ok := value.([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("order requires at least one item")
	}

	items := make([]OrderItem, 0, len(raw))
	for i, elem := range raw {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d: expected object, got %T", i, elem)
		}
		sku, _ := obj["sku"].(string)
		if sku == "" {
			return nil, fmt.Errorf("item %d: sku is required", i)
		}
		qty := 1
		if q, ok := obj["quantity"].(float64); ok {
			if q < 1 || q != float64(int(q)) {
				return nil, fmt.Errorf("item %d: quantity must be a positive integer", i)
			}
			qty = int(q)
		}
		items = append(items, OrderItem{SKU: sku, Quantity: qty})
	}
	return items, nil
}

// =============================================================================
// find_providers
// =============================================================================

// ProviderTool looks up care providers in the directory.
type ProviderTool struct {
	finder ProviderFinder
}

var _ Tool = (*ProviderTool)(nil)

// NewProviderTool creates the find_providers tool.
func NewProviderTool(finder ProviderFinder) *ProviderTool {
	return &ProviderTool{finder: finder}
}

func (t *ProviderTool) Name() string { return "find_providers" }

func (t *ProviderTool) Definition() Definition {
	return Definition{
		Name:        t.Name(),
		Description: "Find care providers by specialty in the user's region.",
		Parameters: map[string]ParamDef{
			"specialty": {
				Type:        ParamTypeString,
				Description: "Provider specialty, e.g. pediatrics, obstetrics.",
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum providers to return.",
				Default:     5,
			},
		},
	}
}

// Execute implements Tool. The region is taken from the request context.
func (t *ProviderTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	rc, _ := RequestContextFrom(ctx)

	limit, _ := intParam(params, "limit")
	providers, err := t.finder.FindProviders(ctx, strParam(params, "specialty"), rc.CountryContextID, limit)
	if err != nil {
		return nil, err
	}
	return &Result{ToolName: t.Name(), Success: true, Data: providers}, nil
}

// =============================================================================
// Registration
// =============================================================================

// Collaborators bundles the backends the standard tool set is built on.
type Collaborators struct {
	Assessor    TriageAssessor
	Searcher    KnowledgeSearcher
	Fulfillment *FulfillmentClient
	Providers   ProviderFinder
}

// RegisterStandardTools registers the fixed tool set on the registry.
//
// # Description
//
// Fulfillment-backed tools are skipped when no fulfillment client is
// configured; the assistant then simply has no ordering capability rather
// than tools that always fail.
func RegisterStandardTools(registry *Registry, c Collaborators) {
	toolset := []Tool{
		NewTriageTool(c.Assessor),
		NewSearchTool(c.Searcher),
		NewProviderTool(c.Providers),
	}
	if c.Fulfillment != nil {
		toolset = append(toolset,
			NewReferralTool(c.Fulfillment),
			NewCommodityOrderTool(c.Fulfillment),
			NewPharmacyOrderTool(c.Fulfillment),
		)
	}
	for _, t := range toolset {
		registry.Register(t)
	}
}

// =============================================================================
// Parameter Helpers
// =============================================================================

func strParam(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return s
}

func intParam(params map[string]any, name string) (int, bool) {
	switch v := params[name].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func floatParam(params map[string]any, name string) (float64, bool) {
	switch v := params[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func boolPtrParam(params map[string]any, name string) *bool {
	if b, ok := params[name].(bool); ok {
		return &b
	}
	return nil
}

func strSliceParam(params map[string]any, name string) []string {
	raw, ok := params[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, elem := range raw {
		if s, ok := elem.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// Fulfillment Collaborators
// =============================================================================

// ReferralRequest asks the fulfillment service to open a referral.
type ReferralRequest struct {
	UserID     string `json:"user_id"`
	FacilityID string `json:"facility_id,omitempty"`
	Reason     string `json:"reason"`
	Urgency    string `json:"urgency,omitempty"`
}

// ReferralConfirmation is the fulfillment service's acknowledgement.
type ReferralConfirmation struct {
	ReferralID string `json:"referral_id"`
	Status     string `json:"status"`
	FacilityID string `json:"facility_id,omitempty"`
}

// OrderItem is one line of a commodity or pharmacy order.
type OrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OrderRequest asks the fulfillment service to place an order.
type OrderRequest struct {
	UserID string      `json:"user_id"`
	Items  []OrderItem `json:"items"`
	Notes  string      `json:"notes,omitempty"`
}

// OrderConfirmation is the fulfillment service's acknowledgement.
type OrderConfirmation struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ReferralCreator opens clinical referrals with the fulfillment backend.
type ReferralCreator interface {
	CreateReferral(ctx context.Context, req ReferralRequest) (*ReferralConfirmation, error)
}

// CommodityOrderer places health-commodity orders.
type CommodityOrderer interface {
	OrderCommodities(ctx context.Context, req OrderRequest) (*OrderConfirmation, error)
}

// PharmacyOrderer places pharmacy orders.
type PharmacyOrderer interface {
	OrderPharmacy(ctx context.Context, req OrderRequest) (*OrderConfirmation, error)
}

// =============================================================================
// HTTP Implementation
// =============================================================================

// FulfillmentClient talks to the external fulfillment service over HTTP.
//
// # Description
//
// One client covers referrals, commodity orders, and pharmacy orders. Each
// call is a JSON POST; a non-2xx status is an error carrying the response
// body for diagnosis.
type FulfillmentClient struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ ReferralCreator  = (*FulfillmentClient)(nil)
	_ CommodityOrderer = (*FulfillmentClient)(nil)
	_ PharmacyOrderer  = (*FulfillmentClient)(nil)
)

// NewFulfillmentClient creates a client for the given base URL.
func NewFulfillmentClient(baseURL string) *FulfillmentClient {
	return &FulfillmentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateReferral opens a referral via POST /v1/referrals.
func (c *FulfillmentClient) CreateReferral(ctx context.Context, req ReferralRequest) (*ReferralConfirmation, error) {
	var out ReferralConfirmation
	if err := c.postJSON(ctx, "/v1/referrals", req, &out); err != nil {
		return nil, fmt.Errorf("referral request failed: %w", err)
	}
	return &out, nil
}

// OrderCommodities places a commodity order via POST /v1/orders/commodities.
func (c *FulfillmentClient) OrderCommodities(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	var out OrderConfirmation
	if err := c.postJSON(ctx, "/v1/orders/commodities", req, &out); err != nil {
		return nil, fmt.Errorf("commodity order failed: %w", err)
	}
	return &out, nil
}

// OrderPharmacy places a pharmacy order via POST /v1/orders/pharmacy.
func (c *FulfillmentClient) OrderPharmacy(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	var out OrderConfirmation
	if err := c.postJSON(ctx, "/v1/orders/pharmacy", req, &out); err != nil {
		return nil, fmt.Errorf("pharmacy order failed: %w", err)
	}
	return &out, nil
}

func (c *FulfillmentClient) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fulfillment service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fulfillment service returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

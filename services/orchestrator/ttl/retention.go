// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
)

// DefaultRetention is how long interaction records are kept.
const DefaultRetention = 90 * 24 * time.Hour

// BatchDeleteResult summarizes one batch delete against the log store.
type BatchDeleteResult struct {
	Successful int
	Failed     int
}

// BatchDeleteBeforeFunc deletes records of className whose timestamp is
// older than cutoff. Injected so the sweep is testable without Weaviate.
type BatchDeleteBeforeFunc func(ctx context.Context, className string, cutoff time.Time) (BatchDeleteResult, error)

// InteractionSweep deletes interaction records past the retention window.
//
// # Description
//
// Interaction records carry personal health conversation data; retention is
// a compliance boundary, not a disk-space optimization. Each Run computes
// the cutoff from the injected Clock and issues one filtered batch delete.
type InteractionSweep struct {
	deleteBefore BatchDeleteBeforeFunc
	clock        Clock
	retention    time.Duration
}

var _ Task = (*InteractionSweep)(nil)

// NewInteractionSweep creates the sweep over the given Weaviate client.
// A non-positive retention falls back to DefaultRetention.
func NewInteractionSweep(client *weaviate.Client, clock Clock, retention time.Duration) *InteractionSweep {
	return newInteractionSweep(newWeaviateBatchDeleteBeforeFunc(client), clock, retention)
}

// newInteractionSweep is the injectable constructor used by tests.
func newInteractionSweep(deleteBefore BatchDeleteBeforeFunc, clock Clock, retention time.Duration) *InteractionSweep {
	if clock == nil {
		clock = SystemClock{}
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InteractionSweep{
		deleteBefore: deleteBefore,
		clock:        clock,
		retention:    retention,
	}
}

// Name implements Task.
func (s *InteractionSweep) Name() string { return "interaction_retention_sweep" }

// Run implements Task. Returns the number of records deleted.
func (s *InteractionSweep) Run(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.retention)

	result, err := s.deleteBefore(ctx, "Interaction", cutoff)
	if err != nil {
		return 0, fmt.Errorf("interaction sweep failed: %w", err)
	}
	if result.Failed > 0 {
		slog.Warn("Interaction sweep left records behind",
			"deleted", result.Successful,
			"failed", result.Failed,
			"cutoff", cutoff.Format(time.RFC3339))
	}
	return result.Successful, nil
}

// newWeaviateBatchDeleteBeforeFunc creates a BatchDeleteBeforeFunc backed by
// Weaviate's batch ObjectsBatchDeleter API with a timestamp range filter.
func newWeaviateBatchDeleteBeforeFunc(client *weaviate.Client) BatchDeleteBeforeFunc {
	return func(ctx context.Context, className string, cutoff time.Time) (BatchDeleteResult, error) {
		where := filters.Where().
			WithPath([]string{"timestamp"}).
			WithOperator(filters.LessThan).
			WithValueInt(cutoff.UnixMilli())

		resp, err := client.Batch().ObjectsBatchDeleter().
			WithClassName(className).
			WithWhere(where).
			WithOutput("minimal").
			Do(ctx)
		if err != nil {
			return BatchDeleteResult{}, fmt.Errorf("batch delete failed for %s: %w", className, err)
		}
		if resp == nil || resp.Results == nil {
			return BatchDeleteResult{}, nil
		}
		return BatchDeleteResult{
			Successful: int(resp.Results.Successful),
			Failed:     int(resp.Results.Failed),
		}, nil
	}
}

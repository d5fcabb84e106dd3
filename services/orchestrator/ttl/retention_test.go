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
	"errors"
	"testing"
	"time"
)

// TestInteractionSweepCutoff verifies the cutoff is computed from the
// injected clock minus the retention window, to the exact instant.
func TestInteractionSweepCutoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var gotClass string
	var gotCutoff time.Time

	sweep := newInteractionSweep(
		func(_ context.Context, className string, cutoff time.Time) (BatchDeleteResult, error) {
			gotClass = className
			gotCutoff = cutoff
			return BatchDeleteResult{Successful: 3}, nil
		},
		FixedClock{Instant: now},
		30*24*time.Hour,
	)

	reclaimed, err := sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if reclaimed != 3 {
		t.Errorf("reclaimed = %d, want 3", reclaimed)
	}
	if gotClass != "Interaction" {
		t.Errorf("class = %q, want Interaction", gotClass)
	}
	want := now.Add(-30 * 24 * time.Hour)
	if !gotCutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", gotCutoff, want)
	}
}

// TestInteractionSweepDefaultRetention verifies a non-positive retention
// falls back to the 90-day default.
func TestInteractionSweepDefaultRetention(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var gotCutoff time.Time

	sweep := newInteractionSweep(
		func(_ context.Context, _ string, cutoff time.Time) (BatchDeleteResult, error) {
			gotCutoff = cutoff
			return BatchDeleteResult{}, nil
		},
		FixedClock{Instant: now},
		0,
	)

	if _, err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := now.Add(-DefaultRetention)
	if !gotCutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", gotCutoff, want)
	}
}

// TestInteractionSweepDeleteError verifies a backend failure surfaces as a
// task error with zero reclaimed.
func TestInteractionSweepDeleteError(t *testing.T) {
	sweep := newInteractionSweep(
		func(context.Context, string, time.Time) (BatchDeleteResult, error) {
			return BatchDeleteResult{}, errors.New("weaviate unreachable")
		},
		FixedClock{Instant: time.Now()},
		time.Hour,
	)

	reclaimed, err := sweep.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failed delete")
	}
	if reclaimed != 0 {
		t.Errorf("reclaimed = %d, want 0", reclaimed)
	}
}

// TestInteractionSweepPartialFailure verifies partial batch failures are
// reported as reclaimed successes, not errors.
func TestInteractionSweepPartialFailure(t *testing.T) {
	sweep := newInteractionSweep(
		func(context.Context, string, time.Time) (BatchDeleteResult, error) {
			return BatchDeleteResult{Successful: 7, Failed: 2}, nil
		},
		FixedClock{Instant: time.Now()},
		time.Hour,
	)

	reclaimed, err := sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if reclaimed != 7 {
		t.Errorf("reclaimed = %d, want 7", reclaimed)
	}
}

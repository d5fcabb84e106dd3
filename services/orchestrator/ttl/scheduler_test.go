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
	"sync/atomic"
	"testing"
	"time"
)

// countingTask records how often it ran and returns a fixed outcome.
type countingTask struct {
	name      string
	reclaimed int
	err       error
	runs      atomic.Int32
}

func (t *countingTask) Name() string { return t.name }

func (t *countingTask) Run(_ context.Context) (int, error) {
	t.runs.Add(1)
	return t.reclaimed, t.err
}

// TestRunNowExecutesAllTasks verifies a manual cycle runs every task once
// and reports per-task results in registration order.
func TestRunNowExecutesAllTasks(t *testing.T) {
	a := &countingTask{name: "a", reclaimed: 2}
	b := &countingTask{name: "b", reclaimed: 5}
	scheduler := NewScheduler(SchedulerConfig{Interval: time.Hour}, a, b)

	result := scheduler.RunNow(context.Background())

	if a.runs.Load() != 1 || b.runs.Load() != 1 {
		t.Fatalf("runs = %d/%d, want 1/1", a.runs.Load(), b.runs.Load())
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("task results = %d, want 2", len(result.Tasks))
	}
	if result.Tasks[0].Task != "a" || result.Tasks[0].Reclaimed != 2 {
		t.Errorf("unexpected first task result: %+v", result.Tasks[0])
	}
	if result.Tasks[1].Task != "b" || result.Tasks[1].Reclaimed != 5 {
		t.Errorf("unexpected second task result: %+v", result.Tasks[1])
	}
}

// TestFailingTaskIsIsolated verifies one failing task does not prevent
// later tasks from running in the same cycle.
func TestFailingTaskIsIsolated(t *testing.T) {
	failing := &countingTask{name: "failing", err: errors.New("boom")}
	healthy := &countingTask{name: "healthy", reclaimed: 1}
	scheduler := NewScheduler(SchedulerConfig{Interval: time.Hour}, failing, healthy)

	result := scheduler.RunNow(context.Background())

	if healthy.runs.Load() != 1 {
		t.Error("healthy task should still run after a failure")
	}
	if result.Tasks[0].Err == nil {
		t.Error("failing task error should be recorded")
	}
	if result.Tasks[1].Err != nil {
		t.Errorf("healthy task should not carry an error: %v", result.Tasks[1].Err)
	}
}

// TestStartRunsImmediateCycle verifies Start kicks off a cycle right away
// rather than waiting for the first tick.
func TestStartRunsImmediateCycle(t *testing.T) {
	task := &countingTask{name: "task"}
	scheduler := NewScheduler(SchedulerConfig{Interval: time.Hour}, task)

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	deadline := time.After(2 * time.Second)
	for task.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("immediate cycle never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestDoubleStartRejected verifies a second Start while running errors.
func TestDoubleStartRejected(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Interval: time.Hour})

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer scheduler.Stop()

	if err := scheduler.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}
}

// TestStopIsIdempotent verifies Stop can be called repeatedly.
func TestStopIsIdempotent(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Interval: time.Hour})

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	scheduler.Stop()
	scheduler.Stop()
}

// TestDefaultInterval verifies a non-positive interval takes the default.
func TestDefaultInterval(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{})

	if scheduler.config.Interval != time.Hour {
		t.Errorf("interval = %v, want 1h", scheduler.config.Interval)
	}
}

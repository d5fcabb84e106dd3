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
	"sync"
	"time"
)

// =============================================================================
// Maintenance Tasks
// =============================================================================

// Task is one unit of periodic maintenance work.
//
// # Thread Safety
//
// The scheduler runs tasks sequentially from a single goroutine; a Task
// only needs to be safe against its own backing store.
type Task interface {
	// Name identifies the task in logs and results.
	Name() string

	// Run performs one maintenance pass and reports items reclaimed.
	Run(ctx context.Context) (int, error)
}

// TaskResult summarizes one task's pass within a cycle.
type TaskResult struct {
	Task      string
	Reclaimed int
	Err       error
}

// CycleResult summarizes one full maintenance cycle.
type CycleResult struct {
	StartTime time.Time
	EndTime   time.Time
	Tasks     []TaskResult
}

// DurationMs returns the cycle duration in milliseconds.
func (r CycleResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// =============================================================================
// Scheduler
// =============================================================================

// SchedulerConfig holds configuration for the maintenance scheduler.
//
// # Fields
//
//   - Interval: How often to run maintenance cycles. Default: 1 hour.
type SchedulerConfig struct {
	Interval time.Duration
}

// DefaultSchedulerConfig returns production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: 1 * time.Hour,
	}
}

// Scheduler runs registered maintenance tasks on a fixed interval.
//
// # Description
//
// Manages the lifecycle of a background goroutine that periodically runs
// every registered task. Uses the ticker + done channel pattern for
// graceful shutdown. A failing task is logged and skipped; it never stops
// the cycle or the scheduler.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	tasks   []Task
	config  SchedulerConfig
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler over the given tasks.
func NewScheduler(config SchedulerConfig, tasks ...Task) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		tasks:  tasks,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the background maintenance loop.
//
// # Description
//
// Runs an immediate cycle, then one per interval until Stop() is called or
// the context is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name())
	}
	slog.Info("Maintenance scheduler starting",
		"interval", s.config.Interval.String(),
		"tasks", names)

	go s.runLoop(ctx)
	return nil
}

// Stop gracefully stops the scheduler. Safe to call multiple times.
// Does not interrupt an in-progress cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	slog.Info("Maintenance scheduler stopping")
	close(s.done)
	s.running = false
}

// RunNow triggers an immediate maintenance cycle, independent of the
// scheduled interval. Useful for manual invocation and testing.
func (s *Scheduler) RunNow(ctx context.Context) CycleResult {
	return s.runCycle(ctx)
}

// runLoop is the main scheduler goroutine.
func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Maintenance scheduler stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Maintenance scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeCycle(ctx)
		}
	}
}

// executeCycle runs one cycle with logging.
func (s *Scheduler) executeCycle(ctx context.Context) {
	result := s.runCycle(ctx)

	reclaimed := 0
	failed := 0
	for _, t := range result.Tasks {
		reclaimed += t.Reclaimed
		if t.Err != nil {
			failed++
		}
	}

	if reclaimed > 0 || failed > 0 {
		slog.Info("Maintenance cycle completed",
			"reclaimed", reclaimed,
			"failed_tasks", failed,
			"duration_ms", result.DurationMs())
	} else {
		slog.Debug("Maintenance cycle completed (nothing to reclaim)")
	}
}

// runCycle runs every task sequentially, isolating failures.
func (s *Scheduler) runCycle(ctx context.Context) CycleResult {
	result := CycleResult{
		StartTime: time.Now(),
		Tasks:     make([]TaskResult, 0, len(s.tasks)),
	}

	for _, task := range s.tasks {
		reclaimed, err := task.Run(ctx)
		if err != nil {
			slog.Error("Maintenance task failed", "task", task.Name(), "error", err)
		}
		result.Tasks = append(result.Tasks, TaskResult{
			Task:      task.Name(),
			Reclaimed: reclaimed,
			Err:       err,
		})
	}

	result.EndTime = time.Now()
	return result
}

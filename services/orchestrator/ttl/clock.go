// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl runs background retention maintenance for the orchestrator:
// Badger value-log garbage collection and the interaction-log retention
// sweep.
package ttl

import "time"

// Clock supplies the current time to retention logic.
//
// # Description
//
// Retention cutoffs are computed from Clock.Now() rather than time.Now()
// directly so tests can pin time and assert exact cutoff behavior.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the real system time.
type SystemClock struct{}

var _ Clock = SystemClock{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock implements Clock with a pinned instant. For testing.
type FixedClock struct {
	Instant time.Time
}

var _ Clock = FixedClock{}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time {
	return c.Instant
}

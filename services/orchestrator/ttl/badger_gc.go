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

	"github.com/dgraph-io/badger/v4"
)

// gcDiscardRatio is the value-log rewrite threshold. A file is rewritten
// when at least half of it is stale.
const gcDiscardRatio = 0.5

// BadgerGC reclaims value-log space left behind by expired session entries.
//
// # Description
//
// Badger's TTL expires keys logically; the value log still holds the old
// payloads until garbage collection rewrites it. Each Run loops value-log
// GC until Badger reports nothing left to rewrite.
type BadgerGC struct {
	db *badger.DB
}

var _ Task = (*BadgerGC)(nil)

// NewBadgerGC creates the GC task over the given database.
func NewBadgerGC(db *badger.DB) *BadgerGC {
	return &BadgerGC{db: db}
}

// Name implements Task.
func (g *BadgerGC) Name() string { return "badger_value_log_gc" }

// Run implements Task. Returns the number of value-log files rewritten.
func (g *BadgerGC) Run(ctx context.Context) (int, error) {
	rewritten := 0
	for {
		if err := ctx.Err(); err != nil {
			return rewritten, err
		}

		err := g.db.RunValueLogGC(gcDiscardRatio)
		if err == nil {
			rewritten++
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			return rewritten, nil
		}
		return rewritten, err
	}
}

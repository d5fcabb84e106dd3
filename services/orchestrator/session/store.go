// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session persists per-user conversation history.
//
// Storage is BadgerDB with native per-key TTL. Saves are replace-on-write:
// each save fully overwrites the stored history and resets the TTL, so a
// fresh session is indistinguishable from an expired or cleared one. Saves
// for the same user are serialized through a per-key mutex to avoid lost
// updates when two turns race on one key.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 24 * time.Hour

// keyPrefix namespaces session keys inside the shared Badger instance.
const keyPrefix = "session/"

// Store is the session persistence contract.
//
// # Thread Safety
//
// Implementations must support concurrent load/save for distinct users.
// Saves for the same user must not interleave.
type Store interface {
	// Load returns the stored turn history for a user. A missing or
	// expired key yields an empty slice, not an error.
	Load(ctx context.Context, userID string) ([]datatypes.Turn, error)

	// Save atomically replaces the stored history and resets the TTL.
	Save(ctx context.Context, userID string, turns []datatypes.Turn) error

	// Clear removes the stored history. Clearing a missing key is a no-op.
	Clear(ctx context.Context, userID string) error

	// Metadata summarizes the stored session, or returns nil when absent.
	Metadata(ctx context.Context, userID string) (*datatypes.SessionMetadata, error)
}

// =============================================================================
// Serialization
// =============================================================================

// storedTurn is the on-disk shape of one turn. Optional linkage fields are
// only written when present so histories round-trip exactly.
type storedTurn struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []datatypes.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

// storedSession is the on-disk shape of one session value.
type storedSession struct {
	Turns   []storedTurn `json:"turns"`
	FirstTs time.Time    `json:"first_ts"`
	LastTs  time.Time    `json:"last_ts"`
}

func encodeSession(turns []datatypes.Turn, firstTs, lastTs time.Time) ([]byte, error) {
	stored := storedSession{
		Turns:   make([]storedTurn, 0, len(turns)),
		FirstTs: firstTs,
		LastTs:  lastTs,
	}
	for _, t := range turns {
		stored.Turns = append(stored.Turns, storedTurn(t))
	}
	return json.Marshal(stored)
}

func decodeSession(data []byte) (*storedSession, error) {
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return &stored, nil
}

// toTurns converts stored turns back to the domain model. An unrecognized
// role degrades to a user turn rather than failing the whole session load.
func (s *storedSession) toTurns() []datatypes.Turn {
	turns := make([]datatypes.Turn, 0, len(s.Turns))
	for _, st := range s.Turns {
		turn := datatypes.Turn(st)
		if !datatypes.IsKnownRole(turn.Role) {
			slog.Warn("Unknown turn role in stored session, treating as user", "role", turn.Role)
			turn.Role = datatypes.RoleUser
			turn.ToolCalls = nil
			turn.ToolCallID = ""
		}
		turns = append(turns, turn)
	}
	return turns
}

// =============================================================================
// Badger Store
// =============================================================================

// BadgerStore implements Store over BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration

	// saveLocks holds one *sync.Mutex per user id. Entries are never
	// evicted; user cardinality per process is bounded by traffic.
	saveLocks sync.Map
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore creates a store over an open Badger instance. A zero ttl
// uses DefaultTTL.
func NewBadgerStore(db *badger.DB, ttl time.Duration) *BadgerStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerStore{db: db, ttl: ttl}
}

func sessionKey(userID string) []byte {
	return []byte(keyPrefix + userID)
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, userID string) ([]datatypes.Turn, error) {
	stored, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return []datatypes.Turn{}, nil
	}
	return stored.toTurns(), nil
}

// Save implements Store.
//
// # Description
//
// The entire stored history is replaced and the TTL restarts from now.
// Saves for the same user are serialized through a per-key mutex so a
// second turn racing on the key waits for the first write instead of
// interleaving with it. Histories longer than MaxStoredTurns are trimmed
// from the head before writing.
func (s *BadgerStore) Save(ctx context.Context, userID string, turns []datatypes.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock, _ := s.saveLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if len(turns) > datatypes.MaxStoredTurns {
		turns = turns[len(turns)-datatypes.MaxStoredTurns:]
	}

	now := time.Now().UTC()
	firstTs := now
	if prev, err := s.read(ctx, userID); err == nil && prev != nil && !prev.FirstTs.IsZero() {
		firstTs = prev.FirstTs
	}

	data, err := encodeSession(turns, firstTs, now)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(userID), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	slog.Debug("Session saved", "user_id", userID, "turns", len(turns))
	return nil
}

// Clear implements Store.
func (s *BadgerStore) Clear(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(sessionKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	slog.Info("Session cleared", "user_id", userID)
	return nil
}

// Metadata implements Store.
func (s *BadgerStore) Metadata(ctx context.Context, userID string) (*datatypes.SessionMetadata, error) {
	stored, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	return &datatypes.SessionMetadata{
		UserID:       userID,
		MessageCount: len(stored.Turns),
		FirstTs:      stored.FirstTs,
		LastTs:       stored.LastTs,
	}, nil
}

// read loads and decodes the raw session value, returning nil for a missing
// or expired key.
func (s *BadgerStore) read(ctx context.Context, userID string) (*storedSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(userID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	return decodeSession(data)
}

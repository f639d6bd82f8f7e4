// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dialogue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/storage/badger"
)

// CheckpointVersion is the current checkpoint format version (semver).
const CheckpointVersion = "1.0.0"

// checkpointKeyPrefix namespaces thread checkpoints inside the shared
// Badger keyspace.
const checkpointKeyPrefix = "thread/"

// ConversationState is the durable state of one thread.
//
// # Description
//
// Holds the full message sequence plus turn accounting. A state is
// persisted once per committed turn, after the assistant message is
// appended and before the answer leaves the service, so a crash between
// turns never loses a committed turn and never persists half of one.
type ConversationState struct {
	ThreadID  string              `json:"thread_id"`
	Messages  []datatypes.Message `json:"messages"`
	TurnCount int                 `json:"turn_count"`
	UpdatedAt int64               `json:"updated_at"` // Unix milliseconds UTC
}

// NewConversationState returns the empty starting state for a thread.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{
		ThreadID: threadID,
		Messages: []datatypes.Message{},
	}
}

// serializableCheckpoint is the stored format for checkpoints.
type serializableCheckpoint struct {
	State     *ConversationState `json:"state"`
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Checksum  string             `json:"checksum"`
	ThreadID  string             `json:"thread_id"`
}

// computeChecksum calculates SHA256 of the state for integrity verification.
func computeChecksum(state *ConversationState, threadID string, timestamp time.Time) (string, error) {
	// Deterministic representation excluding the checksum field itself
	data := struct {
		State     *ConversationState `json:"state"`
		Timestamp time.Time          `json:"timestamp"`
		Version   string             `json:"version"`
		ThreadID  string             `json:"thread_id"`
	}{
		State:     state,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
		ThreadID:  threadID,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// CheckpointStore persists per-thread conversation state in BadgerDB.
//
// # Description
//
// Each thread maps to one key; a save replaces the previous checkpoint
// in a single transaction, so readers observe either the old committed
// state or the new one, never a partial write. Every checkpoint carries
// a format version and a SHA256 checksum verified on load.
//
// # Thread Safety
//
// CheckpointStore is safe for concurrent use; per-thread ordering is
// the caller's job (see Machine).
type CheckpointStore struct {
	db *badger.DB
}

// NewCheckpointStore creates a checkpoint store over an open database.
func NewCheckpointStore(db *badger.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save writes the thread's checkpoint in one transaction.
//
// # Outputs
//
//   - error: *CheckpointError (Op "save") if serialization or the write
//     fails. On failure the previous checkpoint remains intact.
func (s *CheckpointStore) Save(ctx context.Context, state *ConversationState) error {
	if state == nil || state.ThreadID == "" {
		return &CheckpointError{Op: "save", Cause: errors.New("state must have a thread id")}
	}

	timestamp := time.Now().UTC()
	state.UpdatedAt = timestamp.UnixMilli()

	checksum, err := computeChecksum(state, state.ThreadID, timestamp)
	if err != nil {
		return &CheckpointError{Op: "save", ThreadID: state.ThreadID, Cause: err}
	}

	checkpoint := &serializableCheckpoint{
		State:     state,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
		Checksum:  checksum,
		ThreadID:  state.ThreadID,
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return &CheckpointError{Op: "save", ThreadID: state.ThreadID, Cause: fmt.Errorf("marshal checkpoint: %w", err)}
	}

	err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(checkpointKeyPrefix+state.ThreadID), data)
	})
	if err != nil {
		return &CheckpointError{Op: "save", ThreadID: state.ThreadID, Cause: err}
	}
	return nil
}

// Load reads and verifies the thread's checkpoint.
//
// # Outputs
//
//   - *ConversationState: The committed state, or nil when the thread
//     has no checkpoint yet (a fresh thread, not an error).
//   - error: *CheckpointError (Op "load") wrapping
//     ErrCheckpointVersionMismatch or ErrCheckpointCorrupt when the
//     stored bytes fail verification.
func (s *CheckpointStore) Load(ctx context.Context, threadID string) (*ConversationState, error) {
	var data []byte
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(checkpointKeyPrefix + threadID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &CheckpointError{Op: "load", ThreadID: threadID, Cause: err}
	}

	var sc serializableCheckpoint
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, &CheckpointError{Op: "load", ThreadID: threadID, Cause: fmt.Errorf("unmarshal checkpoint: %w", err)}
	}

	if sc.Version != CheckpointVersion {
		return nil, &CheckpointError{
			Op:       "load",
			ThreadID: threadID,
			Cause:    fmt.Errorf("%w: got %s, want %s", ErrCheckpointVersionMismatch, sc.Version, CheckpointVersion),
		}
	}

	expectedChecksum, err := computeChecksum(sc.State, sc.ThreadID, sc.Timestamp)
	if err != nil {
		return nil, &CheckpointError{Op: "load", ThreadID: threadID, Cause: fmt.Errorf("compute checksum for verification: %w", err)}
	}
	if sc.Checksum != expectedChecksum {
		return nil, &CheckpointError{Op: "load", ThreadID: threadID, Cause: ErrCheckpointCorrupt}
	}

	return sc.State, nil
}

// Delete removes the thread's checkpoint. Missing keys are not an error.
func (s *CheckpointStore) Delete(ctx context.Context, threadID string) error {
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(checkpointKeyPrefix + threadID))
	})
	if err != nil {
		return &CheckpointError{Op: "delete", ThreadID: threadID, Cause: err}
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dialogue

import (
	"errors"
	"fmt"
)

// GenerationError is returned when the backing model fails to produce a
// response. The turn still completes with a degraded answer; the caller
// surfaces the cause in response metadata.
type GenerationError struct {
	ThreadID string
	Cause    error
}

// Error implements the error interface for GenerationError.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed on thread %s: %v", e.ThreadID, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// IsGenerationError checks if an error is a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// CheckpointError is returned when a thread's durable state could not be
// loaded or saved. A save failure arrives after generation already
// succeeded, so the answer is still delivered; the caller flags broken
// continuity instead of dropping the turn.
type CheckpointError struct {
	Op       string // "load" or "save"
	ThreadID string
	Cause    error
}

// Error implements the error interface for CheckpointError.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s failed on thread %s: %v", e.Op, e.ThreadID, e.Cause)
}

func (e *CheckpointError) Unwrap() error {
	return e.Cause
}

// IsCheckpointError checks if an error is a CheckpointError.
func IsCheckpointError(err error) bool {
	var ce *CheckpointError
	return errors.As(err, &ce)
}

// Checkpoint integrity failures.
var (
	// ErrCheckpointCorrupt indicates a stored checkpoint failed its
	// checksum verification.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt: checksum mismatch")

	// ErrCheckpointVersionMismatch indicates a stored checkpoint was
	// written by an incompatible format version.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

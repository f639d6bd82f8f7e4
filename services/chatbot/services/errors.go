// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"errors"
	"fmt"
)

// ErrKnowledgeDisabled indicates no knowledge store is wired, so
// knowledge ingestion cannot be served.
var ErrKnowledgeDisabled = errors.New("knowledge base not configured")

// InvalidPreferenceError indicates a turn request carried preference
// values outside the accepted sets. The request is rejected before any
// retrieval or generation work happens.
type InvalidPreferenceError struct {
	Cause error
}

func (e *InvalidPreferenceError) Error() string {
	return fmt.Sprintf("invalid preferences: %v", e.Cause)
}

func (e *InvalidPreferenceError) Unwrap() error {
	return e.Cause
}

// IsInvalidPreferenceError checks if an error is an InvalidPreferenceError.
func IsInvalidPreferenceError(err error) bool {
	var target *InvalidPreferenceError
	return errors.As(err, &target)
}

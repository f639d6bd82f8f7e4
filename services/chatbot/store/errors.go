// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

// ErrStoreUnavailable indicates the backing index could not be reached
// or refused the operation. Insert and query failures wrap this sentinel
// so callers can distinguish infrastructure faults from empty results.
var ErrStoreUnavailable = errors.New("interaction store unavailable")

// IsStoreUnavailable reports whether err wraps ErrStoreUnavailable.
//
// # Example
//
//	_, err := st.Insert(ctx, props)
//	if store.IsStoreUnavailable(err) {
//	    // answer can still be served, persistence is flagged
//	}
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dialogue

import "sync"

// threadLocks serializes turns per thread. Turns on the same thread
// queue behind one mutex; distinct threads proceed in parallel.
//
// Locks are never removed; thread cardinality is bounded by the
// deployment's active conversations and one idle mutex is small.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for a thread, creating it on first use.
func (t *threadLocks) get(threadID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[threadID] = lock
	}
	return lock
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history projects the interaction log into transcript views.
package history

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/store"
)

var tracer = otel.Tracer("chatbot.history")

// DefaultScanLimit bounds how many records one projection reads from
// the store before sorting. Overridable via CHAT_HISTORY_SCAN_LIMIT.
const DefaultScanLimit = 1000

// Projector builds newest-first transcripts from the interaction store.
//
// # Thread Safety
//
// Projector is safe for concurrent use.
type Projector struct {
	store     store.InteractionStore
	scanLimit int
}

// ScanLimit returns the configured record scan bound: the value of
// CHAT_HISTORY_SCAN_LIMIT when set to a positive integer, otherwise
// DefaultScanLimit. Every reader of the interaction log should bound
// its scans with this so the override applies uniformly.
func ScanLimit() int {
	if val := os.Getenv("CHAT_HISTORY_SCAN_LIMIT"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal > 0 {
			return intVal
		}
	}
	return DefaultScanLimit
}

// NewProjector creates a projector over the given store.
func NewProjector(st store.InteractionStore) *Projector {
	return &Projector{store: st, scanLimit: ScanLimit()}
}

// Project returns up to limit stored interactions, newest first.
//
// # Description
//
// Reads a broad slice of the store, then orders by timestamp
// descending. Records stored without a timestamp sort as the earliest
// entries, after every timestamped record; ties break by record ID so
// repeated projections of the same store state agree.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - limit: Maximum entries returned; values < 1 fall back to the
//     scan limit.
//
// # Outputs
//
//   - []datatypes.HistoryEntry: Transcript entries, newest first. Empty
//     for an empty store.
//   - error: Non-nil if the store read fails.
func (p *Projector) Project(ctx context.Context, limit int) ([]datatypes.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "Project")
	defer span.End()

	records, err := p.store.List(ctx, p.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("history projection failed: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := timestampOf(records[i]), timestampOf(records[j])
		if ti != tj {
			return ti > tj
		}
		return records[i].ID < records[j].ID
	})

	if limit < 1 || limit > len(records) {
		limit = len(records)
	}

	entries := make([]datatypes.HistoryEntry, 0, limit)
	for _, rec := range records[:limit] {
		ts := int64(0)
		if rec.Timestamp != nil {
			ts = *rec.Timestamp
		}
		entries = append(entries, datatypes.HistoryEntry{
			ID:         rec.ID,
			Question:   rec.Question,
			Answer:     rec.Answer,
			Source:     rec.Source,
			Confidence: rec.Confidence,
			Timestamp:  ts,
		})
	}
	return entries, nil
}

// timestampOf treats a missing timestamp as the earliest possible one.
func timestampOf(rec store.ScoredInteraction) int64 {
	if rec.Timestamp == nil {
		return -1
	}
	return *rec.Timestamp
}

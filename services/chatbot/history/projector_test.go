// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for transcript projection

package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/store"
)

// fixedStore serves a canned record list.
type fixedStore struct {
	records []store.ScoredInteraction
	err     error
}

func (f *fixedStore) Insert(ctx context.Context, props datatypes.InteractionProperties) (string, error) {
	return "", nil
}

func (f *fixedStore) QueryExact(ctx context.Context, question string, limit int) ([]store.ScoredInteraction, error) {
	return nil, nil
}

func (f *fixedStore) QueryNearest(ctx context.Context, question string, limit int) ([]store.ScoredInteraction, error) {
	return nil, nil
}

func (f *fixedStore) List(ctx context.Context, limit int) ([]store.ScoredInteraction, error) {
	return f.records, f.err
}

func (f *fixedStore) DeleteThread(ctx context.Context, threadID string) (int, error) {
	return 0, nil
}

func tsPtr(ts int64) *int64 { return &ts }

// =============================================================================
// Project Tests
// =============================================================================

func TestProject_NewestFirst(t *testing.T) {
	st := &fixedStore{records: []store.ScoredInteraction{
		{ID: "old", Question: "q1", Timestamp: tsPtr(100)},
		{ID: "newest", Question: "q3", Timestamp: tsPtr(300)},
		{ID: "middle", Question: "q2", Timestamp: tsPtr(200)},
	}}
	projector := NewProjector(st)

	entries, err := projector.Project(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "newest", entries[0].ID)
	assert.Equal(t, "middle", entries[1].ID)
	assert.Equal(t, "old", entries[2].ID)
}

func TestProject_MissingTimestampSortsEarliest(t *testing.T) {
	st := &fixedStore{records: []store.ScoredInteraction{
		{ID: "untimestamped", Question: "q1", Timestamp: nil},
		{ID: "timestamped", Question: "q2", Timestamp: tsPtr(1)},
	}}
	projector := NewProjector(st)

	entries, err := projector.Project(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "timestamped", entries[0].ID, "any timestamp beats a missing one")
	assert.Equal(t, "untimestamped", entries[1].ID)
	assert.Zero(t, entries[1].Timestamp)
}

func TestProject_TiesBreakByID(t *testing.T) {
	st := &fixedStore{records: []store.ScoredInteraction{
		{ID: "bbb", Timestamp: tsPtr(100)},
		{ID: "aaa", Timestamp: tsPtr(100)},
	}}
	projector := NewProjector(st)

	first, err := projector.Project(context.Background(), 0)
	require.NoError(t, err)
	again, err := projector.Project(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, first, again, "repeated projections of the same state agree")
	assert.Equal(t, "aaa", first[0].ID)
}

func TestProject_RespectsLimit(t *testing.T) {
	st := &fixedStore{records: []store.ScoredInteraction{
		{ID: "a", Timestamp: tsPtr(1)},
		{ID: "b", Timestamp: tsPtr(2)},
		{ID: "c", Timestamp: tsPtr(3)},
	}}
	projector := NewProjector(st)

	entries, err := projector.Project(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
}

func TestProject_EmptyStore(t *testing.T) {
	projector := NewProjector(&fixedStore{})

	entries, err := projector.Project(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProject_StoreFailure(t *testing.T) {
	projector := NewProjector(&fixedStore{err: errors.New("connection refused")})

	_, err := projector.Project(context.Background(), 0)
	assert.Error(t, err)
}

// =============================================================================
// ScanLimit Tests
// =============================================================================

func TestScanLimit(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		expected int
	}{
		{"unset uses default", "", DefaultScanLimit},
		{"positive override", "25", 25},
		{"non-numeric ignored", "lots", DefaultScanLimit},
		{"zero ignored", "0", DefaultScanLimit},
		{"negative ignored", "-5", DefaultScanLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHAT_HISTORY_SCAN_LIMIT", tt.env)
			assert.Equal(t, tt.expected, ScanLimit())
		})
	}
}

func TestNewProjector_HonorsScanLimitOverride(t *testing.T) {
	t.Setenv("CHAT_HISTORY_SCAN_LIMIT", "7")

	projector := NewProjector(&fixedStore{})
	assert.Equal(t, 7, projector.scanLimit)
}

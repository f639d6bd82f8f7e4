// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for history and thread administration handlers

package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
)

// =============================================================================
// HandleHistory Tests
// =============================================================================

func TestHandleHistory_ReturnsEntries(t *testing.T) {
	router, _ := newTestRouter(t)

	require.Equal(t, http.StatusOK, postChat(router, `{"thread_id": "t1", "question": "q1"}`).Code)
	require.Equal(t, http.StatusOK, postChat(router, `{"thread_id": "t1", "question": "q2"}`).Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/history", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHandleHistory_RejectsBadLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/history?limit=banana", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Thread Administration Tests
// =============================================================================

func TestListThreads_ReturnsDistinctThreads(t *testing.T) {
	router, _ := newTestRouter(t)

	require.Equal(t, http.StatusOK, postChat(router, `{"thread_id": "alpha", "question": "q1"}`).Code)
	require.Equal(t, http.StatusOK, postChat(router, `{"thread_id": "beta", "question": "q2"}`).Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/threads", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Threads []string `json:"threads"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, resp.Threads)
}

func TestGetThreadMessages_FreshThreadIsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/threads/never-seen/messages", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ThreadID string              `json:"thread_id"`
		Messages []datatypes.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "never-seen", resp.ThreadID)
	assert.Empty(t, resp.Messages)
}

func TestDeleteThread_RemovesData(t *testing.T) {
	router, st := newTestRouter(t)

	require.Equal(t, http.StatusOK, postChat(router, `{"thread_id": "doomed", "question": "q1"}`).Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/threads/doomed", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doomed")

	records, err := st.List(req.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

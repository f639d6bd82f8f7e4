// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the chat turn handler

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/dialogue"
	"github.com/paullosergio/chatbot/services/chatbot/retrieval"
	"github.com/paullosergio/chatbot/services/chatbot/routes"
	"github.com/paullosergio/chatbot/services/chatbot/services"
	"github.com/paullosergio/chatbot/services/chatbot/storage/badger"
	"github.com/paullosergio/chatbot/services/chatbot/store"
	"github.com/paullosergio/chatbot/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// flatEmbedder maps every text to one vector.
type flatEmbedder struct{}

func (flatEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// cannedLLM answers every chat with a fixed string.
type cannedLLM struct {
	answer string
}

func (c *cannedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return c.answer, nil
}

func (c *cannedLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	return c.answer, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.MemoryInteractionStore) {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.NewMemoryInteractionStore(flatEmbedder{})
	knowledge := store.NewMemoryKnowledgeStore(flatEmbedder{})
	checkpoints := dialogue.NewCheckpointStore(db)
	generator := services.NewLLMGenerator(&cannedLLM{answer: "a canned answer"}, llm.GenerationParams{})
	machine := dialogue.NewMachine(checkpoints, generator)
	policy := retrieval.NewPolicy(st, retrieval.PolicyConfig{TopK: 4, Threshold: 0.6})
	svc := services.NewTurnService(st, knowledge, policy, machine, checkpoints, nil)

	router := gin.New()
	routes.SetupRoutes(router, svc, false)
	return router, st
}

func postChat(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleChatTurn Tests
// =============================================================================

func TestHandleChatTurn_ReturnsAnswer(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postChat(router, `{"thread_id": "thread-1", "question": "hello?"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a canned answer", resp.Answer)
	assert.Equal(t, "thread-1", resp.ThreadID)
	assert.NotEmpty(t, resp.ResponseID)
	assert.Equal(t, "cold", resp.Metadata["source"])
}

func TestHandleChatTurn_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postChat(router, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatTurn_MissingQuestion(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postChat(router, `{"thread_id": "thread-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatTurn_InvalidPreferences(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postChat(router, `{"thread_id": "t", "question": "q", "preferences": {"formality": "shouty"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "preferences")
}

func TestHandleChatTurn_RepeatedQuestionServedFromCache(t *testing.T) {
	router, _ := newTestRouter(t)

	first := postChat(router, `{"thread_id": "thread-1", "question": "repeat?"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postChat(router, `{"thread_id": "thread-1", "question": "repeat?"}`)
	require.Equal(t, http.StatusOK, second.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "exact_cache", resp.Metadata["source"])
	assert.Equal(t, "a canned answer", resp.Answer)
}

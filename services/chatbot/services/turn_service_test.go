// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the turn processing pipeline

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/dialogue"
	"github.com/paullosergio/chatbot/services/chatbot/retrieval"
	"github.com/paullosergio/chatbot/services/chatbot/storage/badger"
	"github.com/paullosergio/chatbot/services/chatbot/store"
)

// fixedEmbedder maps every text to the same vector, so any two stored
// questions are at distance zero from each other.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// spyGenerator counts calls and can be told to fail.
type spyGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	calls   int
	lastCtx map[string]interface{}
}

func (g *spyGenerator) Generate(ctx context.Context, messages []datatypes.Message, genCtx map[string]interface{}) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastCtx = genCtx
	return g.answer, g.err
}

func (g *spyGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// failingInsertStore delegates to a memory store but rejects inserts.
type failingInsertStore struct {
	*store.MemoryInteractionStore
}

func (f *failingInsertStore) Insert(ctx context.Context, props datatypes.InteractionProperties) (string, error) {
	return "", store.ErrStoreUnavailable
}

// limitCapturingStore records the limit passed to List.
type limitCapturingStore struct {
	*store.MemoryInteractionStore
	lastListLimit int
}

func (s *limitCapturingStore) List(ctx context.Context, limit int) ([]store.ScoredInteraction, error) {
	s.lastListLimit = limit
	return s.MemoryInteractionStore.List(ctx, limit)
}

// failingKnowledgeStore rejects every operation.
type failingKnowledgeStore struct{}

func (failingKnowledgeStore) Insert(ctx context.Context, props datatypes.KnowledgeProperties) (string, error) {
	return "", store.ErrStoreUnavailable
}

func (failingKnowledgeStore) QueryNearest(ctx context.Context, text string, limit int) ([]store.ScoredKnowledge, error) {
	return nil, store.ErrStoreUnavailable
}

func newTestService(t *testing.T, st store.InteractionStore, gen dialogue.Generator) *TurnService {
	return newTestServiceWithKnowledge(t, st, store.NewMemoryKnowledgeStore(fixedEmbedder{}), gen)
}

func newTestServiceWithKnowledge(t *testing.T, st store.InteractionStore, ks store.KnowledgeStore, gen dialogue.Generator) *TurnService {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	checkpoints := dialogue.NewCheckpointStore(db)
	machine := dialogue.NewMachine(checkpoints, gen)
	policy := retrieval.NewPolicy(st, retrieval.PolicyConfig{TopK: 4, Threshold: 0.6})
	return NewTurnService(st, ks, policy, machine, checkpoints, nil)
}

func turnRequest(threadID, question string) *datatypes.TurnRequest {
	return &datatypes.TurnRequest{ThreadID: threadID, Question: question}
}

// =============================================================================
// HandleTurn Tests
// =============================================================================

func TestHandleTurn_ColdTurnGeneratesAndPersists(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "generated answer"}
	svc := newTestService(t, st, gen)
	ctx := context.Background()

	resp, err := svc.HandleTurn(ctx, turnRequest("thread-1", "a new question"))
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "generated answer", resp.Answer)
	assert.Equal(t, datatypes.SourceCold, resp.Metadata[datatypes.MetaSource])
	assert.InDelta(t, 0.9*0.8, resp.Confidence, 1e-9)
	assert.Equal(t, 1, gen.callCount())

	// The turn is now store material.
	hits, err := st.QueryExact(ctx, "a new question", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "generated answer", hits[0].Answer)
}

func TestHandleTurn_ExactHitSkipsGeneration(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "should never run"}
	svc := newTestService(t, st, gen)
	ctx := context.Background()

	_, err := st.Insert(ctx, datatypes.InteractionProperties{
		ThreadID:   "thread-1",
		Question:   "known question",
		Answer:     "cached answer",
		Confidence: 0.72,
	})
	require.NoError(t, err)

	resp, err := svc.HandleTurn(ctx, turnRequest("thread-1", "known question"))
	require.NoError(t, err)

	assert.Equal(t, "cached answer", resp.Answer)
	assert.Equal(t, datatypes.SourceExactCache, resp.Metadata[datatypes.MetaSource])
	assert.Equal(t, 0.72, resp.Confidence)
	assert.Zero(t, gen.callCount(), "cache hits must bypass generation entirely")

	// No new record either.
	records, err := st.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestHandleTurn_ExactHitIsIdempotent(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "first answer"}
	svc := newTestService(t, st, gen)
	ctx := context.Background()

	first, err := svc.HandleTurn(ctx, turnRequest("thread-1", "repeat me"))
	require.NoError(t, err)
	require.Equal(t, 1, gen.callCount())

	for i := 0; i < 3; i++ {
		again, err := svc.HandleTurn(ctx, turnRequest("thread-1", "repeat me"))
		require.NoError(t, err)
		assert.Equal(t, first.Answer, again.Answer)
		assert.Equal(t, datatypes.SourceExactCache, again.Metadata[datatypes.MetaSource])
	}
	assert.Equal(t, 1, gen.callCount(), "repeats replay the stored answer")
}

func TestHandleTurn_AugmentedFeedsNeighborAnswers(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "informed answer"}
	svc := newTestService(t, st, gen)
	ctx := context.Background()

	_, err := st.Insert(ctx, datatypes.InteractionProperties{
		Question: "a related question",
		Answer:   "prior answer",
	})
	require.NoError(t, err)

	resp, err := svc.HandleTurn(ctx, turnRequest("thread-1", "a different question"))
	require.NoError(t, err)

	assert.Equal(t, datatypes.SourceAugmented, resp.Metadata[datatypes.MetaSource])
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)

	gen.mu.Lock()
	previous, ok := gen.lastCtx[retrieval.KeyPreviousResponses].([]string)
	gen.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, []string{"prior answer"}, previous)
}

func TestHandleTurn_MetadataCarriesResponseAndTimestamp(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "an answer"})

	resp, err := svc.HandleTurn(context.Background(), turnRequest("thread-1", "q"))
	require.NoError(t, err)

	assert.Equal(t, "an answer", resp.Metadata[datatypes.MetaResponse])
	assert.Equal(t, resp.Timestamp, resp.Metadata[datatypes.MetaTimestamp])
}

func TestHandleTurn_GenerationFailureDegrades(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{err: errors.New("model down")}
	svc := newTestService(t, st, gen)
	ctx := context.Background()

	resp, err := svc.HandleTurn(ctx, turnRequest("thread-1", "doomed"))
	require.NoError(t, err, "a generation failure is a degraded response, not an error")

	assert.Equal(t, dialogue.DegradedAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, datatypes.SourceDegraded, resp.Metadata[datatypes.MetaSource])
	assert.Contains(t, resp.Metadata, datatypes.MetaError)
	assert.Equal(t, "generation_failure", resp.Metadata[datatypes.MetaErrorKind])

	// Degraded answers are not cache material.
	records, listErr := st.List(ctx, 0)
	require.NoError(t, listErr)
	assert.Empty(t, records)
}

func TestHandleTurn_InsertFailureFlagsUnpersisted(t *testing.T) {
	st := &failingInsertStore{store.NewMemoryInteractionStore(fixedEmbedder{})}
	svc := newTestService(t, st, &spyGenerator{answer: "still delivered"})

	resp, err := svc.HandleTurn(context.Background(), turnRequest("thread-1", "q"))
	require.NoError(t, err, "a failed append does not fail the turn")

	assert.Equal(t, "still delivered", resp.Answer)
	assert.Equal(t, true, resp.Metadata[datatypes.MetaUnpersisted])
	assert.Equal(t, "store_unavailable", resp.Metadata[datatypes.MetaErrorKind])
}

func TestHandleTurn_InvalidPreferencesRejected(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "unused"}
	svc := newTestService(t, st, gen)

	req := turnRequest("thread-1", "q")
	req.Preferences = &datatypes.Preferences{Formality: "shouty"}

	_, err := svc.HandleTurn(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsInvalidPreferenceError(err))
	assert.Zero(t, gen.callCount(), "rejected requests never reach generation")
}

func TestHandleTurn_MissingThreadIDRejected(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "unused"})

	_, err := svc.HandleTurn(context.Background(), turnRequest("", "q"))
	require.Error(t, err)
	assert.False(t, IsInvalidPreferenceError(err))
}

func TestHandleTurn_LanguagePenaltyApplies(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "resposta"})

	req := turnRequest("thread-1", "pergunta")
	req.Preferences = &datatypes.Preferences{Language: "pt-BR"}

	resp, err := svc.HandleTurn(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 0.9*0.8*0.95, resp.Confidence, 1e-9)
}

func TestHandleTurn_EachCallerGetsFreshResponseID(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "a"})
	ctx := context.Background()

	// Two sequential turns on distinct questions.
	r1, err := svc.HandleTurn(ctx, turnRequest("thread-1", "q1"))
	require.NoError(t, err)
	r2, err := svc.HandleTurn(ctx, turnRequest("thread-1", "q2"))
	require.NoError(t, err)

	assert.NotEqual(t, r1.ResponseID, r2.ResponseID)
}

func TestHandleTurn_DistinctThreadsDoNotShareHistory(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "a"})
	ctx := context.Background()

	_, err := svc.HandleTurn(ctx, turnRequest("thread-1", "q1"))
	require.NoError(t, err)
	_, err = svc.HandleTurn(ctx, turnRequest("thread-2", "q2"))
	require.NoError(t, err)

	m1, err := svc.ThreadMessages(ctx, "thread-1")
	require.NoError(t, err)
	m2, err := svc.ThreadMessages(ctx, "thread-2")
	require.NoError(t, err)

	require.Len(t, m1, 2)
	require.Len(t, m2, 2)
	assert.Equal(t, "q1", m1[0].Content)
	assert.Equal(t, "q2", m2[0].Content)
}

// =============================================================================
// History / Thread Administration Tests
// =============================================================================

func TestGetHistory_ReturnsStoredTurns(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "a"})
	ctx := context.Background()

	_, err := svc.HandleTurn(ctx, turnRequest("thread-1", "q1"))
	require.NoError(t, err)
	_, err = svc.HandleTurn(ctx, turnRequest("thread-1", "q2"))
	require.NoError(t, err)

	history, err := svc.GetHistory(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, history.Count)
	assert.Len(t, history.Entries, 2)
}

func TestListThreads_DeduplicatesInFirstSeenOrder(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "a"})
	ctx := context.Background()

	for _, turn := range []struct{ thread, question string }{
		{"alpha", "q1"},
		{"beta", "q2"},
		{"alpha", "q3"},
	} {
		_, err := svc.HandleTurn(ctx, turnRequest(turn.thread, turn.question))
		require.NoError(t, err)
	}

	threads, err := svc.ListThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, threads)
}

func TestListThreads_HonorsScanLimitOverride(t *testing.T) {
	t.Setenv("CHAT_HISTORY_SCAN_LIMIT", "2")

	st := &limitCapturingStore{MemoryInteractionStore: store.NewMemoryInteractionStore(fixedEmbedder{})}
	svc := newTestService(t, st, &spyGenerator{answer: "a"})

	_, err := svc.ListThreads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.lastListLimit, "thread listing must scan with the configured limit")
}

// =============================================================================
// Knowledge Base Tests
// =============================================================================

func TestHandleTurn_KnowledgeGroundsColdTurn(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	ks := store.NewMemoryKnowledgeStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "grounded answer"}
	svc := newTestServiceWithKnowledge(t, st, ks, gen)
	ctx := context.Background()

	_, err := ks.Insert(ctx, datatypes.KnowledgeProperties{Content: "the office opens at nine", Source: "faq"})
	require.NoError(t, err)

	resp, err := svc.HandleTurn(ctx, turnRequest("thread-1", "when does the office open?"))
	require.NoError(t, err)

	assert.Equal(t, []string{"the office opens at nine"}, gen.lastCtx[retrieval.KeyRelevantKnowledge])
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9, "a grounded turn carries no missing-material penalty")
}

func TestHandleTurn_CallerKnowledgeWinsOverStore(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	ks := store.NewMemoryKnowledgeStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "a"}
	svc := newTestServiceWithKnowledge(t, st, ks, gen)
	ctx := context.Background()

	_, err := ks.Insert(ctx, datatypes.KnowledgeProperties{Content: "stored document"})
	require.NoError(t, err)

	req := turnRequest("thread-1", "a question")
	req.Context = map[string]interface{}{
		retrieval.KeyRelevantKnowledge: []string{"caller material"},
	}
	_, err = svc.HandleTurn(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"caller material"}, gen.lastCtx[retrieval.KeyRelevantKnowledge])
}

func TestHandleTurn_KnowledgeSearchFailureDoesNotFailTurn(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	gen := &spyGenerator{answer: "still answered"}
	svc := newTestServiceWithKnowledge(t, st, &failingKnowledgeStore{}, gen)

	resp, err := svc.HandleTurn(context.Background(), turnRequest("thread-1", "a question"))
	require.NoError(t, err)

	assert.Equal(t, "still answered", resp.Answer)
	assert.InDelta(t, 0.9*0.8, resp.Confidence, 1e-9, "the turn proceeds ungrounded")
}

func TestAddKnowledge_StoresDocument(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	ks := store.NewMemoryKnowledgeStore(fixedEmbedder{})
	svc := newTestServiceWithKnowledge(t, st, ks, &spyGenerator{answer: "a"})
	ctx := context.Background()

	id, err := svc.AddKnowledge(ctx, &datatypes.KnowledgeRequest{Content: "a fact", Source: "manual"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	docs, err := ks.QueryNearest(ctx, "a fact", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a fact", docs[0].Content)
	assert.Equal(t, "manual", docs[0].Source)
}

func TestAddKnowledge_RejectsEmptyContent(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	ks := store.NewMemoryKnowledgeStore(fixedEmbedder{})
	svc := newTestServiceWithKnowledge(t, st, ks, &spyGenerator{answer: "a"})

	_, err := svc.AddKnowledge(context.Background(), &datatypes.KnowledgeRequest{Content: "   "})
	assert.Error(t, err)
}

func TestAddKnowledge_DisabledWithoutStore(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestServiceWithKnowledge(t, st, nil, &spyGenerator{answer: "a"})

	_, err := svc.AddKnowledge(context.Background(), &datatypes.KnowledgeRequest{Content: "a fact"})
	assert.ErrorIs(t, err, ErrKnowledgeDisabled)
}

func TestDeleteThread_RemovesInteractionsAndCheckpoint(t *testing.T) {
	st := store.NewMemoryInteractionStore(fixedEmbedder{})
	svc := newTestService(t, st, &spyGenerator{answer: "a"})
	ctx := context.Background()

	_, err := svc.HandleTurn(ctx, turnRequest("thread-1", "q1"))
	require.NoError(t, err)
	_, err = svc.HandleTurn(ctx, turnRequest("thread-1", "q2"))
	require.NoError(t, err)

	deleted, err := svc.DeleteThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	messages, err := svc.ThreadMessages(ctx, "thread-1")
	require.NoError(t, err)
	assert.Empty(t, messages, "checkpoint is gone along with the interactions")

	records, err := st.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

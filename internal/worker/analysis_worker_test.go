package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"chat-risk-analysis/backend/internal/deadletter"
	"chat-risk-analysis/backend/internal/inference"
	"chat-risk-analysis/backend/internal/models"
	"chat-risk-analysis/backend/internal/prompt"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	fragments []string
	err       error
	query     string
	k         int
}

func (f *fakeRetriever) Search(_ context.Context, query string, k int) ([]string, error) {
	f.query, f.k = query, k
	return f.fragments, f.err
}

type fakeCompleter struct {
	completion inference.Completion
	panicWith  any
	messages   []models.StructuredMessage
	params     inference.Params
}

func (f *fakeCompleter) Complete(_ context.Context, messages []models.StructuredMessage, params inference.Params) inference.Completion {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.messages, f.params = messages, params
	return f.completion
}

func (f *fakeCompleter) Model() string { return "fake-model" }

type fakeStore struct {
	mu        sync.Mutex
	owners    map[uuid.UUID]uuid.UUID
	lookupErr error
	insertErr error
	results   []models.AnalysisResult
}

func (s *fakeStore) InsertRequest(context.Context, *models.AnalysisRequest) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *fakeStore) InsertResult(_ context.Context, res *models.AnalysisResult) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return uuid.Nil, s.insertErr
	}
	s.results = append(s.results, *res)
	return uuid.New(), nil
}

func (s *fakeStore) GetRequestUserID(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	if s.lookupErr != nil {
		return uuid.Nil, s.lookupErr
	}
	return s.owners[id], nil
}

type fakeSink struct {
	records []deadletter.Record
}

func (f *fakeSink) Record(_ context.Context, rec deadletter.Record) error {
	f.records = append(f.records, rec)
	return nil
}

type harness struct {
	retriever *fakeRetriever
	completer *fakeCompleter
	store     *fakeStore
	sink      *fakeSink
	worker    *AnalysisWorker
	job       Job
	userID    uuid.UUID
}

func newHarness() *harness {
	requestID, userID := uuid.New(), uuid.New()
	h := &harness{
		retriever: &fakeRetriever{fragments: []string{"doc A", "doc B", "doc C"}},
		completer: &fakeCompleter{completion: inference.Completion{
			Text: "LOW risk", Status: models.StatusCompleted, Model: "fake-model",
		}},
		store:  &fakeStore{owners: map[uuid.UUID]uuid.UUID{requestID: userID}},
		sink:   &fakeSink{},
		userID: userID,
		job: Job{
			RequestID:     requestID,
			CharacterName: "Ari",
			Transcript: []models.ChatMessage{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
			},
		},
	}
	h.worker = NewAnalysisWorker(h.retriever, h.completer, h.store, h.sink, nil, Config{Template: "RUBRIC"}, logger.Discard())
	return h
}

func TestRunStoresResult(t *testing.T) {
	h := newHarness()

	h.worker.Run(context.Background(), h.job)

	assert.Equal(t, "user: hi\nassistant: hello", h.retriever.query)
	assert.Equal(t, 3, h.retriever.k)
	assert.Equal(t, inference.DefaultParams(), h.completer.params)
	require.Len(t, h.completer.messages, 4)
	assert.Equal(t, "RUBRIC", h.completer.messages[0].Content)
	assert.Contains(t, h.completer.messages[3].Content, "doc A\n\ndoc B\n\ndoc C")

	require.Len(t, h.store.results, 1)
	res := h.store.results[0]
	assert.Equal(t, h.job.RequestID, res.RequestID)
	assert.Equal(t, h.userID, res.UserID)
	assert.Equal(t, "LOW risk", res.LLMResponse)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.FragmentCount)
	assert.Equal(t, "fake-model", res.Model)
	assert.Empty(t, h.sink.records)
}

func TestRunDegradesOnRetrievalFailure(t *testing.T) {
	h := newHarness()
	h.retriever.fragments = nil
	h.retriever.err = errors.New("index unavailable")

	h.worker.Run(context.Background(), h.job)

	last := h.completer.messages[len(h.completer.messages)-1]
	assert.Contains(t, last.Content, prompt.NoReferenceDocuments)
	require.Len(t, h.store.results, 1)
	assert.Equal(t, 0, h.store.results[0].FragmentCount)
}

func TestRunStoresInferenceFailureText(t *testing.T) {
	h := newHarness()
	cause := errors.New("connection reset")
	h.completer.completion = inference.Completion{
		Text:   inference.FailureText(cause),
		Status: models.StatusInferenceFailed,
		Err:    cause,
	}

	h.worker.Run(context.Background(), h.job)

	require.Len(t, h.store.results, 1)
	assert.Equal(t, inference.ErrorTextPrefix+"connection reset", h.store.results[0].LLMResponse)
	assert.Equal(t, models.StatusInferenceFailed, h.store.results[0].Status)
}

func TestRunStoresNoResponseSentinel(t *testing.T) {
	h := newHarness()
	h.completer.completion = inference.Completion{Text: inference.NoResponseText, Status: models.StatusNoResponse}

	h.worker.Run(context.Background(), h.job)

	require.Len(t, h.store.results, 1)
	assert.Equal(t, inference.NoResponseText, h.store.results[0].LLMResponse)
	assert.NotEmpty(t, h.store.results[0].LLMResponse)
}

func TestRunDropsResultWhenOwnerLookupFails(t *testing.T) {
	h := newHarness()
	h.store.lookupErr = errors.New("db down")

	h.worker.Run(context.Background(), h.job)

	assert.Empty(t, h.store.results)
	require.Len(t, h.sink.records, 1)
	assert.Equal(t, deadletter.StageUserLookup, h.sink.records[0].Stage)
	assert.Equal(t, h.job.RequestID, h.sink.records[0].RequestID)
}

func TestRunDeadLettersInsertFailure(t *testing.T) {
	h := newHarness()
	h.store.insertErr = errors.New("constraint violation")

	h.worker.Run(context.Background(), h.job)

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, deadletter.StageResultInsert, h.sink.records[0].Stage)
	assert.Contains(t, h.sink.records[0].Error, "constraint violation")
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness()
	h.completer.panicWith = "nil map write"

	assert.NotPanics(t, func() { h.worker.Run(context.Background(), h.job) })

	assert.Empty(t, h.store.results)
	require.Len(t, h.sink.records, 1)
	assert.Equal(t, deadletter.StagePanic, h.sink.records[0].Stage)
	assert.Contains(t, h.sink.records[0].Error, "nil map write")
}

func TestSanitizeAndPreview(t *testing.T) {
	assert.Equal(t, "ok�done", Sanitize("ok\xffdone"))
	assert.Equal(t, "plain", Preview("plain"))

	long := strings.Repeat("가", 60)
	p := Preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Equal(t, 50, len([]rune(strings.TrimSuffix(p, "..."))))
}

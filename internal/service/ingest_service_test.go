package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-risk-analysis/backend/internal/deadletter"
	"chat-risk-analysis/backend/internal/models"
	"chat-risk-analysis/backend/internal/repository"
	"chat-risk-analysis/backend/internal/worker"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	requests  []models.AnalysisRequest
	insertErr error
	nilID     bool
}

func (m *memoryStore) InsertRequest(_ context.Context, req *models.AnalysisRequest) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return uuid.Nil, m.insertErr
	}
	if m.nilID {
		return uuid.Nil, nil
	}
	req.ID = uuid.New()
	m.requests = append(m.requests, *req)
	return req.ID, nil
}

func (m *memoryStore) InsertResult(context.Context, *models.AnalysisResult) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (m *memoryStore) GetRequestUserID(context.Context, uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, repository.ErrNotFound
}

// inlineScheduler runs tasks synchronously.
type inlineScheduler struct {
	err   error
	tasks int
}

func (s *inlineScheduler) Submit(task func()) error {
	if s.err != nil {
		return s.err
	}
	s.tasks++
	task()
	return nil
}

type recordingRunner struct {
	jobs []worker.Job
}

func (r *recordingRunner) Run(_ context.Context, job worker.Job) {
	r.jobs = append(r.jobs, job)
}

type sinkRecorder struct {
	records []deadletter.Record
}

func (s *sinkRecorder) Record(_ context.Context, rec deadletter.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func validUpload() *models.TranscriptUpload {
	return &models.TranscriptUpload{
		UserID:        uuid.New(),
		SessionID:     uuid.New(),
		CharacterName: "Ari",
		Messages: []models.ChatMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		EndedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newService(store *memoryStore, sched *inlineScheduler, runner *recordingRunner, sink *sinkRecorder) *IngestService {
	return NewIngestService(context.Background(), store, sched, runner, sink, nil, logger.Discard())
}

func TestAcceptPersistsAndSchedules(t *testing.T) {
	store, sched, runner, sink := &memoryStore{}, &inlineScheduler{}, &recordingRunner{}, &sinkRecorder{}
	svc := newService(store, sched, runner, sink)
	upload := validUpload()

	resp, err := svc.Accept(context.Background(), upload)
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, AcceptedMessage, resp.Message)

	require.Len(t, store.requests, 1)
	req := store.requests[0]
	assert.Equal(t, upload.UserID, req.UserID)
	assert.Equal(t, upload.SessionID, req.SessionID)
	assert.Equal(t, "Ari", req.CharacterName)

	var prompt []models.StructuredMessage
	require.NoError(t, json.Unmarshal(req.PromptSent, &prompt))
	require.Len(t, prompt, len(upload.Messages)+1)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, "Analyze the conversation with Ari.", prompt[0].Content)
	assert.Equal(t, "hello", prompt[2].Content)

	require.Len(t, runner.jobs, 1)
	assert.Equal(t, resp.RequestID, runner.jobs[0].RequestID)
	assert.Equal(t, upload.Messages, runner.jobs[0].Transcript)
	assert.Empty(t, sink.records)
}

func TestAcceptCopiesTranscript(t *testing.T) {
	runner := &recordingRunner{}
	svc := newService(&memoryStore{}, &inlineScheduler{}, runner, &sinkRecorder{})
	upload := validUpload()

	_, err := svc.Accept(context.Background(), upload)
	require.NoError(t, err)

	upload.Messages[0].Content = "mutated"
	assert.Equal(t, "hi", runner.jobs[0].Transcript[0].Content)
}

func TestAcceptRejectsEmptyMessages(t *testing.T) {
	store, sched := &memoryStore{}, &inlineScheduler{}
	svc := newService(store, sched, &recordingRunner{}, &sinkRecorder{})
	upload := validUpload()
	upload.Messages = nil

	_, err := svc.Accept(context.Background(), upload)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "messages", verr.Fields[0].Field)
	assert.Empty(t, store.requests)
	assert.Zero(t, sched.tasks)
}

func TestAcceptRejectsUnknownRole(t *testing.T) {
	store := &memoryStore{}
	svc := newService(store, &inlineScheduler{}, &recordingRunner{}, &sinkRecorder{})
	upload := validUpload()
	upload.Messages = append(upload.Messages, models.ChatMessage{Role: "system", Content: "x"})

	_, err := svc.Accept(context.Background(), upload)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "messages[2].role", verr.Fields[0].Field)
	assert.Empty(t, store.requests)
}

func TestAcceptRejectsMissingFields(t *testing.T) {
	svc := newService(&memoryStore{}, &inlineScheduler{}, &recordingRunner{}, &sinkRecorder{})

	_, err := svc.Accept(context.Background(), &models.TranscriptUpload{
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)
}

func TestAcceptPersistenceFailure(t *testing.T) {
	sched := &inlineScheduler{}
	svc := newService(&memoryStore{insertErr: errors.New("connection refused")}, sched, &recordingRunner{}, &sinkRecorder{})

	_, err := svc.Accept(context.Background(), validUpload())

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, sched.tasks)
}

func TestAcceptMissingGeneratedID(t *testing.T) {
	sched := &inlineScheduler{}
	svc := newService(&memoryStore{nilID: true}, sched, &recordingRunner{}, &sinkRecorder{})

	_, err := svc.Accept(context.Background(), validUpload())

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, repository.ErrMissingID)
	assert.Zero(t, sched.tasks)
}

func TestAcceptSchedulerBusy(t *testing.T) {
	store, sink := &memoryStore{}, &sinkRecorder{}
	svc := newService(store, &inlineScheduler{err: worker.ErrSchedulerBusy}, &recordingRunner{}, sink)

	_, err := svc.Accept(context.Background(), validUpload())

	assert.ErrorIs(t, err, ErrSchedulerBusy)
	require.Len(t, store.requests, 1)
	require.Len(t, sink.records, 1)
	assert.Equal(t, deadletter.StageRejected, sink.records[0].Stage)
	assert.Equal(t, store.requests[0].ID, sink.records[0].RequestID)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-risk-analysis/backend/internal/deadletter"
	"chat-risk-analysis/backend/internal/models"
	"chat-risk-analysis/backend/internal/prompt"
	"chat-risk-analysis/backend/internal/repository"
	"chat-risk-analysis/backend/internal/worker"
	"chat-risk-analysis/backend/pkg/logger"
	"chat-risk-analysis/backend/pkg/middleware"
	"chat-risk-analysis/backend/shared/observability"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AcceptedMessage is returned to the caller once analysis is scheduled.
const AcceptedMessage = "Analysis is running in the background."

var (
	ErrPersistence   = errors.New("failed to persist analysis request")
	ErrSchedulerBusy = worker.ErrSchedulerBusy
)

// FieldError describes one invalid field of an upload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in an upload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid upload: " + strings.Join(parts, "; ")
}

// Runner executes one analysis job. *worker.AnalysisWorker satisfies it.
type Runner interface {
	Run(ctx context.Context, job worker.Job)
}

// IngestService validates uploads, records them and hands them to the worker.
type IngestService struct {
	store       repository.RecordStore
	scheduler   worker.Scheduler
	runner      Runner
	deadLetters deadletter.Sink
	metrics     *observability.PipelineMetrics
	// baseCtx outlives the HTTP request that scheduled the job.
	baseCtx context.Context
	log     *logger.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(
	baseCtx context.Context,
	store repository.RecordStore,
	scheduler worker.Scheduler,
	runner Runner,
	deadLetters deadletter.Sink,
	metrics *observability.PipelineMetrics,
	log *logger.Logger,
) *IngestService {
	if deadLetters == nil {
		deadLetters = deadletter.Noop{}
	}
	return &IngestService{
		store:       store,
		scheduler:   scheduler,
		runner:      runner,
		deadLetters: deadLetters,
		metrics:     metrics,
		baseCtx:     baseCtx,
		log:         log.WithComponent("ingest"),
	}
}

// Validate checks an upload without side effects.
func Validate(upload *models.TranscriptUpload) error {
	var fields []FieldError
	if upload.UserID == uuid.Nil {
		fields = append(fields, FieldError{"user_id", "is required"})
	}
	if upload.SessionID == uuid.Nil {
		fields = append(fields, FieldError{"session_id", "is required"})
	}
	if strings.TrimSpace(upload.CharacterName) == "" {
		fields = append(fields, FieldError{"character_name", "is required"})
	}
	if upload.EndedAt.IsZero() {
		fields = append(fields, FieldError{"ended_at", "is required"})
	}
	if len(upload.Messages) < 1 {
		fields = append(fields, FieldError{"messages", "must contain at least one message"})
	}
	for i, m := range upload.Messages {
		if !models.ValidTranscriptRole(m.Role) {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("must be %q or %q, got %q", models.RoleUser, models.RoleAssistant, m.Role),
			})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Accept validates and persists the upload, then schedules its analysis.
// It returns before the analysis runs.
func (s *IngestService) Accept(ctx context.Context, upload *models.TranscriptUpload) (*models.AcceptedResponse, error) {
	log := s.log.WithRequestID(middleware.GetRequestID(ctx))

	if err := Validate(upload); err != nil {
		s.metrics.Upload(ctx, "invalid")
		return nil, err
	}

	log.Info("chat upload received",
		"user_id", upload.UserID,
		"session_id", upload.SessionID,
		"character_name", upload.CharacterName,
		"message_count", len(upload.Messages),
		"ended_at", upload.EndedAt,
	)
	if payload, err := json.Marshal(upload); err == nil {
		log.Debug("chat upload payload", "payload", string(payload))
	}

	initial := prompt.Initial(upload.CharacterName, upload.Messages)
	promptJSON, err := json.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("%w: encode prompt: %v", ErrPersistence, err)
	}

	requestID, err := s.store.InsertRequest(ctx, &models.AnalysisRequest{
		UserID:        upload.UserID,
		SessionID:     upload.SessionID,
		CharacterName: upload.CharacterName,
		PromptSent:    datatypes.JSON(promptJSON),
	})
	if err == nil && requestID == uuid.Nil {
		err = repository.ErrMissingID
	}
	if err != nil {
		s.metrics.Upload(ctx, "persistence_failed")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	job := worker.Job{
		RequestID:     requestID,
		CharacterName: upload.CharacterName,
		Transcript:    append([]models.ChatMessage(nil), upload.Messages...),
	}
	if err := s.scheduler.Submit(func() { s.runner.Run(s.baseCtx, job) }); err != nil {
		s.metrics.Upload(ctx, "rejected")
		s.metrics.DeadLetter(ctx, deadletter.StageRejected)
		if dlErr := s.deadLetters.Record(ctx, deadletter.Record{
			RequestID: requestID,
			Stage:     deadletter.StageRejected,
			Error:     err.Error(),
			At:        time.Now().UTC(),
		}); dlErr != nil {
			log.LogError(dlErr, "dead letter write failed", "request_id", requestID)
		}
		log.Warn("analysis not scheduled", "analysis_request_id", requestID, "error", err.Error())
		return nil, fmt.Errorf("schedule analysis %s: %w", requestID, err)
	}

	s.metrics.Upload(ctx, "accepted")
	log.Info("analysis scheduled", "analysis_request_id", requestID)

	return &models.AcceptedResponse{
		Status:    "accepted",
		Message:   AcceptedMessage,
		RequestID: requestID,
	}, nil
}

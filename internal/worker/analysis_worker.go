// Package worker runs transcript analyses in the background.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"chat-risk-analysis/backend/internal/deadletter"
	"chat-risk-analysis/backend/internal/inference"
	"chat-risk-analysis/backend/internal/models"
	"chat-risk-analysis/backend/internal/prompt"
	"chat-risk-analysis/backend/internal/repository"
	"chat-risk-analysis/backend/internal/retrieval"
	"chat-risk-analysis/backend/pkg/logger"
	"chat-risk-analysis/backend/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const previewRunes = 50

// Job is one accepted upload waiting for analysis.
type Job struct {
	RequestID     uuid.UUID
	CharacterName string
	Transcript    []models.ChatMessage
}

// Config holds the tunables of an analysis run.
type Config struct {
	Template string
	TopK     int
	Params   inference.Params
}

// AnalysisWorker retrieves reference fragments, asks the model for an
// analysis and stores the result. Run never returns an error.
type AnalysisWorker struct {
	retriever   retrieval.Searcher
	completer   inference.Completer
	store       repository.RecordStore
	deadLetters deadletter.Sink
	metrics     *observability.PipelineMetrics
	cfg         Config
	log         *logger.Logger
}

func NewAnalysisWorker(
	retriever retrieval.Searcher,
	completer inference.Completer,
	store repository.RecordStore,
	deadLetters deadletter.Sink,
	metrics *observability.PipelineMetrics,
	cfg Config,
	log *logger.Logger,
) *AnalysisWorker {
	if cfg.Template == "" {
		cfg.Template = prompt.AnalystTemplate
	}
	if cfg.TopK < 1 {
		cfg.TopK = 3
	}
	if cfg.Params == (inference.Params{}) {
		cfg.Params = inference.DefaultParams()
	}
	if deadLetters == nil {
		deadLetters = deadletter.Noop{}
	}
	return &AnalysisWorker{
		retriever:   retriever,
		completer:   completer,
		store:       store,
		deadLetters: deadLetters,
		metrics:     metrics,
		cfg:         cfg,
		log:         log.WithComponent("analysis-worker"),
	}
}

// Run analyses one job. Panics are recovered and dead-lettered.
func (w *AnalysisWorker) Run(ctx context.Context, job Job) {
	log := w.log.WithAnalysis(job.RequestID.String())
	start := time.Now()

	ctx, span := observability.Tracer().Start(ctx, "analysis.run")
	span.SetAttributes(
		attribute.String("analysis.request_id", job.RequestID.String()),
		attribute.Int("analysis.message_count", len(job.Transcript)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("analysis task panicked", "panic", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, err.Error())
			w.deadLetter(ctx, log, job.RequestID, deadletter.StagePanic, err)
		}
	}()

	query := prompt.Flatten(job.Transcript)

	fragments, err := w.retriever.Search(ctx, query, w.cfg.TopK)
	if err != nil {
		log.LogError(err, "retrieval failed, continuing without reference documents")
		span.AddEvent("retrieval_failed")
		fragments = nil
	}
	log.Info("reference documents retrieved", "count", len(fragments))
	for i, f := range fragments {
		log.Debug("reference document", "rank", i+1, "text", f)
	}

	messages := prompt.Build(job.Transcript, fragments, w.cfg.Template)
	completion := w.completer.Complete(ctx, messages, w.cfg.Params)
	span.SetAttributes(attribute.String("analysis.status", completion.Status))

	userID, err := w.store.GetRequestUserID(ctx, job.RequestID)
	if err != nil {
		log.LogError(err, "request owner lookup failed, dropping analysis result")
		span.SetStatus(codes.Error, "user lookup failed")
		w.deadLetter(ctx, log, job.RequestID, deadletter.StageUserLookup, err)
		return
	}

	result := &models.AnalysisResult{
		RequestID:     job.RequestID,
		UserID:        userID,
		LLMResponse:   completion.Text,
		Status:        completion.Status,
		FragmentCount: len(fragments),
		Model:         completion.Model,
	}
	resultID, err := w.store.InsertResult(ctx, result)
	if err != nil {
		log.LogError(err, "storing analysis result failed")
		span.SetStatus(codes.Error, "result insert failed")
		w.deadLetter(ctx, log, job.RequestID, deadletter.StageResultInsert, err)
		return
	}

	elapsed := time.Since(start)
	w.metrics.Analysis(ctx, completion.Status, elapsed.Seconds(), len(fragments))
	log.Info("analysis result stored",
		"result_id", resultID,
		"status", completion.Status,
		"fragments", len(fragments),
		"duration_ms", elapsed.Milliseconds(),
		"preview", Preview(completion.Text),
	)
}

func (w *AnalysisWorker) deadLetter(ctx context.Context, log *logger.Logger, requestID uuid.UUID, stage string, cause error) {
	w.metrics.DeadLetter(ctx, stage)
	rec := deadletter.Record{
		RequestID: requestID,
		Stage:     stage,
		Error:     cause.Error(),
		At:        time.Now().UTC(),
	}
	// The task context may already be cancelled by the time we get here.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.deadLetters.Record(recCtx, rec); err != nil {
		log.LogError(err, "dead letter write failed", "stage", stage)
	}
}

// Sanitize replaces invalid UTF-8 sequences with U+FFFD.
func Sanitize(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// Preview returns the first runes of the sanitized text for log lines.
func Preview(s string) string {
	clean := []rune(Sanitize(s))
	if len(clean) <= previewRunes {
		return string(clean)
	}
	return string(clean[:previewRunes]) + "..."
}

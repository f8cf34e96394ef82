package api

import (
	"context"
	"errors"
	"net/http"

	"chat-risk-analysis/backend/internal/models"
	"chat-risk-analysis/backend/internal/repository"
	"chat-risk-analysis/backend/internal/service"
	apperrors "chat-risk-analysis/backend/pkg/errors"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Acceptor takes an upload and schedules its analysis.
type Acceptor interface {
	Accept(ctx context.Context, upload *models.TranscriptUpload) (*models.AcceptedResponse, error)
}

type AnalysisHandler struct {
	ingest Acceptor
	reader repository.AnalysisReader
}

func NewAnalysisHandler(ingest Acceptor, reader repository.AnalysisReader) *AnalysisHandler {
	return &AnalysisHandler{ingest: ingest, reader: reader}
}

// RegisterRoutes mounts the analysis endpoints on r.
func (h *AnalysisHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ping", h.Ping)
	r.POST("/api/chat-upload", h.UploadChat)
	r.GET("/api/analysis/:request_id", h.GetAnalysis)
}

func (h *AnalysisHandler) Ping(c *gin.Context) {
	logger.FromContext(c).Info("ping received")
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *AnalysisHandler) UploadChat(c *gin.Context) {
	var upload models.TranscriptUpload
	if err := c.ShouldBindJSON(&upload); err != nil {
		_ = c.Error(apperrors.BadRequestWithDetails(
			apperrors.CodeInvalidRequestBody,
			"Request body is not a valid chat upload",
			err.Error(),
		))
		return
	}

	resp, err := h.ingest.Accept(c.Request.Context(), &upload)
	if err != nil {
		_ = c.Error(uploadError(err))
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func uploadError(err error) *apperrors.AppError {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.BadRequestWithDetails(apperrors.CodeValidation, "Chat upload failed validation", verr.Fields)
	case errors.Is(err, service.ErrSchedulerBusy):
		return apperrors.NewServiceUnavailableError(apperrors.CodeSchedulerBusy,
			"Analysis capacity exhausted, please retry later").WithCause(err)
	case errors.Is(err, service.ErrPersistence):
		return apperrors.NewInternalServerError(apperrors.CodePersistence,
			"Failed to store the analysis request").WithCause(err)
	default:
		return apperrors.FromError(err)
	}
}

func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		_ = c.Error(apperrors.BadRequestWithDetails(apperrors.CodeValidation, "request_id must be a UUID", err.Error()))
		return
	}

	ctx := c.Request.Context()
	req, err := h.reader.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		_ = c.Error(apperrors.NotFoundWithDetails(apperrors.CodeNotFound, "Analysis request not found",
			gin.H{"request_id": requestID.String()}))
		return
	}
	if err != nil {
		_ = c.Error(apperrors.FromError(err))
		return
	}

	results, err := h.reader.ListResultsByRequest(ctx, requestID)
	if err != nil {
		_ = c.Error(apperrors.FromError(err))
		return
	}
	if results == nil {
		results = []models.AnalysisResult{}
	}

	c.JSON(http.StatusOK, models.AnalysisView{Request: *req, Results: results})
}

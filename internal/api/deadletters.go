package api

import (
	"context"
	"net/http"
	"strconv"

	"chat-risk-analysis/backend/internal/deadletter"
	apperrors "chat-risk-analysis/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// DeadLetterReader lists the most recent dead letters, newest first.
type DeadLetterReader interface {
	Recent(ctx context.Context, n int64) ([]deadletter.Record, error)
}

// DeadLetterHandler exposes tasks that ended without a stored result.
type DeadLetterHandler struct {
	reader DeadLetterReader
}

func NewDeadLetterHandler(reader DeadLetterReader) *DeadLetterHandler {
	return &DeadLetterHandler{reader: reader}
}

func (h *DeadLetterHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/dead-letters", h.ListRecent)
}

// ListRecent serves GET /api/dead-letters?limit=N.
func (h *DeadLetterHandler) ListRecent(c *gin.Context) {
	limit := defaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDeadLetterLimit {
			_ = c.Error(apperrors.BadRequestWithDetails(apperrors.CodeValidation,
				"limit must be an integer between 1 and 500", gin.H{"limit": raw}))
			return
		}
		limit = n
	}

	records, err := h.reader.Recent(c.Request.Context(), int64(limit))
	if err != nil {
		_ = c.Error(apperrors.NewServiceUnavailableError(apperrors.CodeDeadLetters,
			"Dead letter store unavailable").WithCause(err))
		return
	}
	if records == nil {
		records = []deadletter.Record{}
	}

	c.JSON(http.StatusOK, gin.H{"dead_letters": records, "count": len(records)})
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	appErr := NewNotFoundError(CodeNotFound, "missing")
	wrapped := fmt.Errorf("lookup: %w", appErr)

	assert.Same(t, appErr, FromError(wrapped))
	assert.Equal(t, http.StatusNotFound, FromError(wrapped).StatusCode)

	plain := stderrors.New("boom")
	got := FromError(plain)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.Equal(t, CodeInternal, got.Code)
	assert.ErrorIs(t, got, plain)
	assert.Nil(t, FromError(nil))
}

func TestNotFoundWithDetails(t *testing.T) {
	err := NotFoundWithDetails(CodeNotFound, "missing", map[string]string{"request_id": "x"})
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, map[string]string{"request_id": "x"}, err.Details)
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewBadRequestError(CodeValidation, "bad"))
	assert.True(t, Is(err, NewBadRequestError(CodeValidation, "other message")))
	assert.False(t, Is(err, NewBadRequestError(CodeInvalidRequestBody, "bad")))
	assert.False(t, Is(stderrors.New("x"), NewBadRequestError(CodeValidation, "bad")))
}

func TestErrorHandlerWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), RecoveryWithLogger())
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(BadRequestWithDetails(CodeValidation, "invalid", []string{"user_id"}))
	})
	r.GET("/internal", func(c *gin.Context) {
		_ = c.Error(stderrors.New("database password is hunter2"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"code":"VALIDATION_ERROR","message":"invalid","details":["user_id"]}}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SERVER_ERROR")
}

package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chat-risk-analysis/backend/api"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator(api.OpenAPISpec)
	require.NoError(t, err)

	r := gin.New()
	r.Use(v.Middleware())
	r.POST("/api/chat-upload", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	r.GET("/unlisted", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/chat-upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestValidUploadPasses(t *testing.T) {
	r := newEngine(t)
	w := post(r, `{
		"user_id": "7f9c0d6e-3c1a-4c55-9a57-0d4f1a0e2b11",
		"session_id": "1b2c3d4e-5f60-4a7b-8c9d-0e1f2a3b4c5d",
		"character_name": "Ari",
		"messages": [{"role": "user", "content": "hi"}],
		"ended_at": "2024-06-01T12:00:00Z"
	}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestInvalidRoleRejected(t *testing.T) {
	r := newEngine(t)
	w := post(r, `{
		"user_id": "7f9c0d6e-3c1a-4c55-9a57-0d4f1a0e2b11",
		"session_id": "1b2c3d4e-5f60-4a7b-8c9d-0e1f2a3b4c5d",
		"character_name": "Ari",
		"messages": [{"role": "narrator", "content": "hi"}],
		"ended_at": "2024-06-01T12:00:00Z"
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestMissingFieldRejected(t *testing.T) {
	r := newEngine(t)
	w := post(r, `{"character_name": "Ari", "messages": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnlistedRoutePassesThrough(t *testing.T) {
	r := newEngine(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/unlisted", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidDocument(t *testing.T) {
	_, err := NewOpenAPIValidator([]byte("openapi: [not valid"))
	assert.Error(t, err)
}

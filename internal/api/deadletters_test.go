package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"chat-risk-analysis/backend/internal/deadletter"
	apperrors "chat-risk-analysis/backend/pkg/errors"
	"chat-risk-analysis/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDeadLetters struct{}

func (failingDeadLetters) Recent(context.Context, int64) ([]deadletter.Record, error) {
	return nil, errors.New("connection refused")
}

func newDeadLetterEngine(reader DeadLetterReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	NewDeadLetterHandler(reader).RegisterRoutes(r)
	return r
}

type deadLetterBody struct {
	DeadLetters []deadletter.Record `json:"dead_letters"`
	Count       int                 `json:"count"`
}

func TestListRecentDeadLetters(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewRedisClient(redis.Options{URL: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	list := deadletter.NewList(client, "dead", 10)
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, list.Record(ctx, deadletter.Record{
			RequestID: id,
			Stage:     deadletter.StageResultInsert,
			Error:     "insert failed",
			At:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		}))
	}

	r := newDeadLetterEngine(list)

	t.Run("default limit returns everything newest first", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/dead-letters", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body deadLetterBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, 3, body.Count)
		assert.Equal(t, ids[2], body.DeadLetters[0].RequestID)
		assert.Equal(t, ids[0], body.DeadLetters[2].RequestID)
		assert.Equal(t, deadletter.StageResultInsert, body.DeadLetters[0].Stage)
	})

	t.Run("limit", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/dead-letters?limit=1", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body deadLetterBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.DeadLetters, 1)
		assert.Equal(t, ids[2], body.DeadLetters[0].RequestID)
	})

	for _, bad := range []string{"0", "-3", "501", "many"} {
		t.Run("rejects limit "+bad, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, "/api/dead-letters?limit="+bad, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListRecentDeadLettersEmptyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewRedisClient(redis.Options{URL: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	w := doRequest(newDeadLetterEngine(deadletter.NewList(client, "dead", 10)), http.MethodGet, "/api/dead-letters", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"dead_letters": [], "count": 0}`, w.Body.String())
}

func TestListRecentDeadLettersStoreDown(t *testing.T) {
	w := doRequest(newDeadLetterEngine(failingDeadLetters{}), http.MethodGet, "/api/dead-letters", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeDeadLetters, body.Error.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

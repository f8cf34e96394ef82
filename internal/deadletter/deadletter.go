// Package deadletter records analysis tasks that ended without a stored result.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-risk-analysis/backend/shared/redis"

	"github.com/google/uuid"
)

// Stages at which a task can be dead-lettered.
const (
	StageRejected     = "rejected"
	StageUserLookup   = "user_lookup"
	StageResultInsert = "result_insert"
	StagePanic        = "panic"
)

// Record is one dead letter entry.
type Record struct {
	RequestID uuid.UUID `json:"request_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// Sink accepts dead letter records.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// List pushes records onto a capped Redis list, newest first.
type List struct {
	client *redis.RedisClient
	key    string
	max    int64
}

func NewList(client *redis.RedisClient, key string, max int64) *List {
	return &List{client: client, key: key, max: max}
}

func (l *List) Record(ctx context.Context, rec Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if err := l.client.PushCapped(ctx, l.key, payload, l.max); err != nil {
		return fmt.Errorf("push dead letter: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (l *List) Recent(ctx context.Context, n int64) ([]Record, error) {
	raw, err := l.client.Range(ctx, l.key, 0, n-1)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Noop drops every record. Used when Redis is not configured.
type Noop struct{}

func (Noop) Record(context.Context, Record) error { return nil }

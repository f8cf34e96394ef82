package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Options selects the Redis server. URL is either a redis:// URL or host:port.
type Options struct {
	URL      string
	Password string
}

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(opts Options) (*RedisClient, error) {
	addr := opts.URL
	if addr == "" {
		addr = "localhost:6379"
	}

	var ro *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{Addr: addr, DB: 0}
	}
	if opts.Password != "" {
		ro.Password = opts.Password
	}
	return &RedisClient{client: redis.NewClient(ro)}, nil
}

// PushCapped prepends value to the list at key and trims it to max entries.
func (r *RedisClient) PushCapped(ctx context.Context, key string, value any, max int64) error {
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	if max > 0 {
		pipe.LTrim(ctx, key, 0, max-1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Range returns list entries between start and stop inclusive.
func (r *RedisClient) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

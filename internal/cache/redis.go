package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"image-relay/internal/config"
)

// Hash fields of a cached entry.
const (
	fieldStatus      = "status"
	fieldContentType = "content_type"
	fieldBody        = "body"
)

// Redis is a Store backed by Redis hashes with a per-key TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to Redis and verifies the connection with a PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Redis{
		client: client,
		ttl:    ttl,
		prefix: cfg.Prefix,
	}, nil
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get returns the entry for key, or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrMiss
	}

	status, err := strconv.Atoi(fields[fieldStatus])
	if err != nil {
		return nil, fmt.Errorf("redis entry %q: bad status %q", key, fields[fieldStatus])
	}

	return &Entry{
		StatusCode:  status,
		ContentType: fields[fieldContentType],
		Body:        []byte(fields[fieldBody]),
	}, nil
}

// Set stores e under key. The hash and its expiry are written in one transaction.
func (r *Redis) Set(ctx context.Context, key string, e *Entry) error {
	k := r.key(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldStatus, strconv.Itoa(e.StatusCode),
			fieldContentType, e.ContentType,
			fieldBody, e.Body,
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

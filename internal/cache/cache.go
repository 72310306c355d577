// Package cache implements the fetch-layer image cache that sits between the
// relay service and the upstream client.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Store.Get when no fresh entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Entry is one cached upstream image.
type Entry struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store persists cache entries. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry) error
	Close() error
}

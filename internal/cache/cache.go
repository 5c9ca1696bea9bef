package cache

import (
	"context"
	"errors"
)

// Store is a namespaced key/value store. Values are opaque bytes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// Clear drops every key in the namespace.
	Clear(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")

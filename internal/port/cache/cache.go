// Package cache defines the port interface for caching hot reads.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. The broker uses it as
// a read-through layer over message and card gets; it is never the source
// of truth.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Nop is a Cache that stores nothing. Used when caching is disabled.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete is a no-op.
func (Nop) Delete(context.Context, string) error { return nil }

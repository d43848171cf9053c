package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Cache is a string key-value store with per-key TTL. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value. A non-positive ttl means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

var ErrMiss = errors.New("cache: miss")

// GetJSON decodes the cached value of key into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dst)
}

// SetJSON encodes value as JSON and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(raw), ttl)
}

// Noop never stores anything. Used when no redis is configured.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string) (string, error)              { return "", ErrMiss }
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }

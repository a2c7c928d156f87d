package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"go.uber.org/zap"
)

// Layer wraps a Cache with JSON encoding and the degrade-don't-fail policy.
// A nil backend turns every read into a load and every write into a no-op.
type Layer struct {
	backend Cache
	logger  *zap.Logger
}

func NewLayer(backend Cache, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{backend: backend, logger: logger}
}

// Fetch returns the cached value under key, or calls load and caches its result for ttl.
// Cache errors are logged and never returned; load errors are returned unchanged.
func Fetch[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](ctx, l, key); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	l.Put(ctx, key, v, ttl)
	return v, nil
}

func lookup[T any](ctx context.Context, l *Layer, key string) (T, bool) {
	var zero T
	if l == nil || l.backend == nil {
		return zero, false
	}
	raw, err := l.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			l.fail("get", key, err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		l.fail("decode", key, err)
		return zero, false
	}
	return v, true
}

// Put stores v as JSON; failures are logged.
func (l *Layer) Put(ctx context.Context, key string, v any, ttl time.Duration) {
	if l == nil || l.backend == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		l.fail("encode", key, err)
		return
	}
	if err := l.backend.Set(ctx, key, string(data), ttl); err != nil {
		l.fail("set", key, err)
	}
}

// Invalidate deletes keys. It reports false when the backend failed, so callers
// can note the stale window; the underlying mutation is never rolled back.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) bool {
	if l == nil || l.backend == nil || len(keys) == 0 {
		return true
	}
	if err := l.backend.Delete(ctx, keys...); err != nil {
		l.fail("delete", keys[0], err)
		return false
	}
	return true
}

// InvalidatePattern deletes every key matching a glob pattern.
func (l *Layer) InvalidatePattern(ctx context.Context, pattern string) bool {
	if l == nil || l.backend == nil {
		return true
	}
	keys, err := l.backend.Keys(ctx, pattern)
	if err != nil {
		l.fail("keys", pattern, err)
		return false
	}
	return l.Invalidate(ctx, keys...)
}

func (l *Layer) fail(op, key string, err error) {
	metrics.CacheError(op)
	l.logger.Warn("cache unavailable, continuing without it",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

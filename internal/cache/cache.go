// Package cache provides the memoize-with-timeout layer and group-based
// invalidation that sit in front of the deal discovery engine. The cache is
// an optimization, never a dependency for correctness: every failure at this
// boundary is logged and degrades to direct computation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrMiss is returned by backends when a key is absent.
var ErrMiss = errors.New("cache: miss")

// groupKeyPrefix namespaces the per-group key registries in the backend.
const groupKeyPrefix = "cache_group:"

// Backend defines the interface for a cache store. Implementations must keep
// Get returning ErrMiss for absent or expired keys, and must support set
// semantics for the group registries; pattern-based deletion is deliberately
// not required so any key/value store can back the cache.
type Backend interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not errors.
	Delete(ctx context.Context, keys ...string) error

	// SetAdd adds members to the set stored at key and refreshes its ttl.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error

	// SetMembers returns all members of the set stored at key.
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Layer wraps a Backend with JSON serialization and group registration.
// A nil *Layer is valid and means caching is disabled.
type Layer struct {
	backend  Backend
	groupTTL time.Duration
	logger   zerolog.Logger
}

// NewLayer creates a cache layer. groupTTL bounds how long an idle group
// registry survives in the backend.
func NewLayer(backend Backend, groupTTL time.Duration) *Layer {
	return &Layer{
		backend:  backend,
		groupTTL: groupTTL,
		logger:   log.With().Str("component", "cache_layer").Logger(),
	}
}

// Get loads key into dest. Returns false on miss or on any backend/decoding
// failure; failures are logged and counted, never propagated.
func (l *Layer) Get(ctx context.Context, key string, dest any) bool {
	if l == nil {
		return false
	}
	data, err := l.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			recordBackendError("get")
			l.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling through")
		}
		recordMiss(opLabel(key))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A decode failure means the entry is unusable; drop it.
		recordBackendError("decode")
		l.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		_ = l.backend.Delete(ctx, key)
		recordMiss(opLabel(key))
		return false
	}
	recordHit(opLabel(key))
	return true
}

// Put stores value under key with the given ttl after registering the key in
// every named group. Registration happens first so a key is never reachable
// by group invalidation without being registered; if registration fails the
// value write is skipped entirely. Best effort: errors are logged, not
// returned.
func (l *Layer) Put(ctx context.Context, key string, value any, ttl time.Duration, groups ...string) {
	if l == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		recordBackendError("encode")
		l.logger.Error().Err(err).Str("key", key).Msg("Failed to encode cache value")
		return
	}
	for _, g := range groups {
		if err := l.backend.SetAdd(ctx, groupKeyPrefix+g, l.groupTTL, key); err != nil {
			recordBackendError("register")
			l.logger.Warn().Err(err).Str("key", key).Str("group", g).Msg("Group registration failed, skipping cache write")
			return
		}
	}
	if err := l.backend.Set(ctx, key, data, ttl); err != nil {
		recordBackendError("set")
		l.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// InvalidateGroup removes every key ever registered under the named group,
// then the registry itself.
func (l *Layer) InvalidateGroup(ctx context.Context, name string) error {
	if l == nil {
		return nil
	}
	groupKey := groupKeyPrefix + name
	keys, err := l.backend.SetMembers(ctx, groupKey)
	if err != nil && !errors.Is(err, ErrMiss) {
		return err
	}
	if len(keys) > 0 {
		if err := l.backend.Delete(ctx, keys...); err != nil {
			return err
		}
	}
	if err := l.backend.Delete(ctx, groupKey); err != nil {
		return err
	}
	recordGroupInvalidation(name, len(keys))
	return nil
}

// GroupSize returns the number of keys currently registered in a group.
// Used by the registry sweeper and for staleness monitoring.
func (l *Layer) GroupSize(ctx context.Context, name string) (int, error) {
	if l == nil {
		return 0, nil
	}
	keys, err := l.backend.SetMembers(ctx, groupKeyPrefix+name)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return 0, nil
		}
		return 0, err
	}
	return len(keys), nil
}

// Cached memoizes compute under key with the given ttl and groups. On a
// cache hit the stored value is returned; otherwise compute runs and its
// result is stored best-effort. A nil layer always computes.
func Cached[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, groups []string, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if l.Get(ctx, key, &cached) {
		return cached, nil
	}

	result, err := compute(ctx)
	if err != nil {
		return result, err
	}

	l.Put(ctx, key, result, ttl, groups...)
	return result, nil
}

// opLabel derives the metric label from a key's leading segment, e.g.
// "nearby_deals:45.8150:15.9819:5:20" -> "nearby_deals".
func opLabel(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

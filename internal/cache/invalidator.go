package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// Invalidator drops cached score material after a mutating call. Invalidation
// is best-effort and eventually consistent; stale entries expire via TTL.
type Invalidator interface {
	InvalidateUser(ctx context.Context, user string) error
	InvalidateLeaderboard(ctx context.Context) error
}

// PatternInvalidator invalidates by glob pattern against both the local TTL
// cache and, when available, a shared redis cache.
type PatternInvalidator struct {
	local *Cache
	redis *RedisClient
}

// NewPatternInvalidator creates an invalidator over the given backends. The
// redis client may be disabled; the local cache must not be nil.
func NewPatternInvalidator(local *Cache, redis *RedisClient) *PatternInvalidator {
	return &PatternInvalidator{local: local, redis: redis}
}

// InvalidateUser drops every cached score entry for the user.
func (p *PatternInvalidator) InvalidateUser(ctx context.Context, user string) error {
	return p.invalidate(ctx, UserPattern(ScopeReputation, user))
}

// InvalidateLeaderboard drops the global leaderboard entries.
func (p *PatternInvalidator) InvalidateLeaderboard(ctx context.Context) error {
	return p.invalidate(ctx, ScopePattern(ScopeLeaderboard))
}

func (p *PatternInvalidator) invalidate(ctx context.Context, pattern string) error {
	deleted := p.local.DeletePrefix(pattern)
	slog.Debug("Invalidated local cache entries", "pattern", pattern, "count", deleted)

	if p.redis == nil || !p.redis.IsEnabled() {
		return nil
	}

	return p.deleteByPattern(ctx, pattern)
}

// deleteByPattern deletes all redis keys matching a pattern.
func (p *PatternInvalidator) deleteByPattern(ctx context.Context, pattern string) error {
	client := p.redis.GetClient()

	// Use SCAN to find matching keys (more efficient than KEYS)
	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Debug("Deleted redis cache keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}

// NoopInvalidator satisfies Invalidator for tests and wiring without caches.
type NoopInvalidator struct{}

func (NoopInvalidator) InvalidateUser(context.Context, string) error { return nil }
func (NoopInvalidator) InvalidateLeaderboard(context.Context) error  { return nil }

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/reputation-engine/internal/monitoring"
)

func TestFallbackLimiterEnforcesLimit(t *testing.T) {
	// No redis client at all forces the in-memory fallback path.
	config := Config{
		IPLimitPerMin:   5,
		UserLimitPerMin: 5,
		BurstMultiplier: 1,
	}
	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(nil, config, metrics)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be blocked")
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestFallbackLimiterKeysAreIndependent(t *testing.T) {
	config := Config{
		IPLimitPerMin:   5,
		UserLimitPerMin: 5,
		BurstMultiplier: 1,
	}
	limiter := NewRateLimiter(nil, config, monitoring.NewMetrics())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	exhausted, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, exhausted.Allowed)

	t.Run("different ip unaffected", func(t *testing.T) {
		result, err := limiter.AllowIP(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("caller bucket separate from ip bucket", func(t *testing.T) {
		result, err := limiter.AllowCaller(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})
}

func TestFallbackLimiterBurstFloor(t *testing.T) {
	// Very low limits still admit a minimum burst of 5.
	config := Config{
		IPLimitPerMin:   1,
		UserLimitPerMin: 1,
		BurstMultiplier: 1,
	}
	limiter := NewRateLimiter(nil, config, monitoring.NewMetrics())
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 8; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.3")
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestFallbackLimiterStatsAndMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(nil, DefaultConfig(), metrics)
	ctx := context.Background()

	_, err := limiter.AllowIP(ctx, "10.0.0.4")
	require.NoError(t, err)

	stats := limiter.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])

	summary := metrics.GetSummary()
	assert.EqualValues(t, 1, summary["ratelimit_fallbacks"])
}

package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	UpdatesApplied      int64
	EvaluationsRecorded int64
	ChallengesResolved  int64
	GatewayCalls        int64
	GatewayErrors       int64
	StartTime           time.Time

	// Rate limit metrics
	RateLimitIPBlocks      int64
	RateLimitUserBlocks    int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64

	// Status code tracking
	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		RequestCountByStatus: make(map[int]int64),
	}
}

func (m *Metrics) IncrementRequest()       { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()         { atomic.AddInt64(&m.ErrorCount, 1) }
func (m *Metrics) IncrementCacheHit()      { atomic.AddInt64(&m.CacheHits, 1) }
func (m *Metrics) IncrementCacheMiss()     { atomic.AddInt64(&m.CacheMisses, 1) }
func (m *Metrics) IncrementUpdate()        { atomic.AddInt64(&m.UpdatesApplied, 1) }
func (m *Metrics) IncrementEvaluation()    { atomic.AddInt64(&m.EvaluationsRecorded, 1) }
func (m *Metrics) IncrementResolution()    { atomic.AddInt64(&m.ChallengesResolved, 1) }
func (m *Metrics) IncrementGatewayCall()   { atomic.AddInt64(&m.GatewayCalls, 1) }
func (m *Metrics) IncrementGatewayError()  { atomic.AddInt64(&m.GatewayErrors, 1) }
func (m *Metrics) IncrementRateLimitIP()   { atomic.AddInt64(&m.RateLimitIPBlocks, 1) }
func (m *Metrics) IncrementRateLimitUser() { atomic.AddInt64(&m.RateLimitUserBlocks, 1) }

// IncrementRateLimitRedisError increments the Redis rate limit error count
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments the in-memory fallback count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetSummary returns a snapshot of all counters
func (m *Metrics) GetSummary() map[string]interface{} {
	m.StatusMutex.RLock()
	byStatus := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		byStatus[code] = count
	}
	m.StatusMutex.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"request_count":          atomic.LoadInt64(&m.RequestCount),
		"error_count":            atomic.LoadInt64(&m.ErrorCount),
		"cache_hits":             atomic.LoadInt64(&m.CacheHits),
		"cache_misses":           atomic.LoadInt64(&m.CacheMisses),
		"updates_applied":        atomic.LoadInt64(&m.UpdatesApplied),
		"evaluations_recorded":   atomic.LoadInt64(&m.EvaluationsRecorded),
		"challenges_resolved":    atomic.LoadInt64(&m.ChallengesResolved),
		"gateway_calls":          atomic.LoadInt64(&m.GatewayCalls),
		"gateway_errors":         atomic.LoadInt64(&m.GatewayErrors),
		"ratelimit_ip_blocks":    atomic.LoadInt64(&m.RateLimitIPBlocks),
		"ratelimit_user_blocks":  atomic.LoadInt64(&m.RateLimitUserBlocks),
		"ratelimit_redis_errors": atomic.LoadInt64(&m.RateLimitRedisErrors),
		"ratelimit_fallbacks":    atomic.LoadInt64(&m.RateLimitFallbackCount),
		"requests_by_status":     byStatus,
	}
}

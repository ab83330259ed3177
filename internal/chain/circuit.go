package chain

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrBreakerOpen is returned while the breaker is rejecting calls. Callers
// wrap it with operation context; check with errors.Is.
var ErrBreakerOpen = errors.New("gateway circuit open")

// BreakerState represents the state of the circuit breaker
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// BreakerConfig tunes the trip and recovery thresholds.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before the breaker trips
	RecoveryTimeout  time.Duration // how long calls are rejected once tripped
	SuccessThreshold int           // half-open successes required to close again
}

// Breaker trips after consecutive gateway failures so a dead gateway fails
// fast instead of stalling every caller behind HTTP timeouts.
type Breaker struct {
	config      BreakerConfig
	state       int32
	failures    int32
	successes   int32
	lastFailure time.Time
	nextAttempt time.Time
}

// NewBreaker creates a breaker, filling zero config fields with defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 3
	}

	return &Breaker{
		config: config,
		state:  int32(StateClosed),
	}
}

// Call executes a function with circuit breaker protection. While open, it
// fails fast with ErrBreakerOpen until the recovery timeout elapses, then
// admits probe calls in half-open state.
func (cb *Breaker) Call(fn func() error) error {
	if BreakerState(atomic.LoadInt32(&cb.state)) == StateOpen {
		if time.Now().Before(cb.nextAttempt) {
			return fmt.Errorf("%w, retrying after %s", ErrBreakerOpen, cb.nextAttempt.Format(time.RFC3339))
		}
		atomic.StoreInt32(&cb.state, int32(StateHalfOpen))
		atomic.StoreInt32(&cb.successes, 0)
	}

	if err := fn(); err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *Breaker) onFailure() {
	failures := atomic.AddInt32(&cb.failures, 1)
	atomic.StoreInt32(&cb.successes, 0)

	if failures >= int32(cb.config.FailureThreshold) {
		atomic.StoreInt32(&cb.state, int32(StateOpen))
		cb.lastFailure = time.Now()
		cb.nextAttempt = cb.lastFailure.Add(cb.config.RecoveryTimeout)
	}
}

func (cb *Breaker) onSuccess() {
	atomic.StoreInt32(&cb.failures, 0)

	if BreakerState(atomic.LoadInt32(&cb.state)) == StateHalfOpen {
		successes := atomic.AddInt32(&cb.successes, 1)
		if successes >= int32(cb.config.SuccessThreshold) {
			atomic.StoreInt32(&cb.state, int32(StateClosed))
		}
	}
}

// State returns the current state of the circuit breaker
func (cb *Breaker) State() BreakerState {
	return BreakerState(atomic.LoadInt32(&cb.state))
}

// Failures returns the current failure count
func (cb *Breaker) Failures() int {
	return int(atomic.LoadInt32(&cb.failures))
}

// Reset resets the circuit breaker to closed state
func (cb *Breaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.failures, 0)
	atomic.StoreInt32(&cb.successes, 0)
}

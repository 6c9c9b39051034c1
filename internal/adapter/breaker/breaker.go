// Package breaker implements the per-proxy circuit breaker (spec §3.4,
// §4.3): closed -> open on a sliding window of recent failures, open ->
// half-open after a cooldown admits exactly one probe, and the probe's
// outcome decides closed or back to open.
//
// Grounded on olla's internal/adapter/health.CircuitBreaker (state struct
// per key, atomic open flag, single in-flight probe via CAS on
// lastAttempt), generalised from its flat failure counter to the spec's
// explicit sliding window of failure timestamps that age out after
// window_duration.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's externally visible state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a single breaker. Zero values fall back to sensible
// defaults via NewCircuitBreaker.
type Config struct {
	// FailureThreshold is how many failures inside WindowDuration trip the
	// breaker from closed to open.
	FailureThreshold int

	// WindowDuration is the sliding window over which failures are
	// counted; entries older than this age out on every record/check.
	WindowDuration time.Duration

	// CooldownDuration is how long the breaker stays open before
	// admitting a half-open probe.
	CooldownDuration time.Duration
}

const (
	DefaultFailureThreshold = 5
	DefaultWindowDuration   = 60 * time.Second
	DefaultCooldownDuration = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = DefaultWindowDuration
	}
	if c.CooldownDuration <= 0 {
		c.CooldownDuration = DefaultCooldownDuration
	}
	return c
}

// CircuitBreaker guards a single proxy. Each proxy in a rotator owns its
// own instance; this type carries no identity of its own.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg Config

	state          State
	failureTimes   []time.Time
	openedAt       time.Time
	probeInFlight  bool
	lastTransition time.Time
}

func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:            cfg.withDefaults(),
		state:          Closed,
		lastTransition: time.Now(),
	}
}

// ShouldAttemptRequest reports whether a request may proceed. A closed
// breaker always allows it. An open breaker allows it only once the
// cooldown has elapsed, and then admits exactly one caller as the
// half-open probe; every other concurrent caller is refused until that
// probe resolves via RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) ShouldAttemptRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case HalfOpen:
		return false
	case Open:
		if time.Since(cb.openedAt) < cb.cfg.CooldownDuration {
			return false
		}
		if cb.probeInFlight {
			return false
		}
		cb.state = HalfOpen
		cb.probeInFlight = true
		cb.lastTransition = time.Now()
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful attempt. In half-open it closes the
// breaker and clears history; in closed it clears the failure window, so
// only failures recorded after the last success count toward tripping it.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.reset()
	case Closed:
		cb.failureTimes = nil
	}
}

// RecordFailure reports a failed attempt. In half-open, the probe failed
// and the breaker reopens immediately without re-counting the window. In
// closed, the failure is appended to the sliding window and the breaker
// trips once FailureThreshold failures remain inside WindowDuration.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case HalfOpen:
		cb.open(now)
		return
	case Open:
		return
	}

	cb.evictOldLocked(now)
	cb.failureTimes = append(cb.failureTimes, now)
	if len(cb.failureTimes) >= cb.cfg.FailureThreshold {
		cb.open(now)
	}
}

// Reset forces the breaker back to closed, discarding any failure history.
// Used by Rotator.ResetCircuitBreaker; a re-added proxy gets a new breaker
// instead.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

func (cb *CircuitBreaker) reset() {
	cb.state = Closed
	cb.failureTimes = nil
	cb.probeInFlight = false
	cb.lastTransition = time.Now()
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.state = Open
	cb.openedAt = now
	cb.probeInFlight = false
	cb.failureTimes = nil
	cb.lastTransition = now
}

func (cb *CircuitBreaker) evictOldLocked(now time.Time) {
	cutoff := now.Add(-cb.cfg.WindowDuration)
	kept := cb.failureTimes[:0:0]
	for _, t := range cb.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failureTimes = kept
}

// State returns the breaker's current state and the count of failures
// still inside the sliding window.
func (cb *CircuitBreaker) State() (State, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.evictOldLocked(time.Now())
	return cb.state, len(cb.failureTimes)
}

// Snapshot is a point-in-time view of a breaker, suitable for status
// reporting across a whole rotator.
type Snapshot struct {
	State            State
	FailuresInWindow int
	OpenedAt         time.Time
	LastTransition   time.Time
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.evictOldLocked(time.Now())
	return Snapshot{
		State:            cb.state,
		FailuresInWindow: len(cb.failureTimes),
		OpenedAt:         cb.openedAt,
		LastTransition:   cb.lastTransition,
	}
}

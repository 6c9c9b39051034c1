package retry

import "time"

// idempotentMethods are always safe to retry regardless of Policy
// configuration (spec §4.4: "GET/HEAD/PUT/DELETE/OPTIONS/TRACE are always
// idempotent").
var idempotentMethods = map[string]struct{}{
	"GET":     {},
	"HEAD":    {},
	"PUT":     {},
	"DELETE":  {},
	"OPTIONS": {},
	"TRACE":   {},
}

// Policy configures one call to Executor.Execute.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first,
	// i.e. MaxAttempts-1 retries at most.
	MaxAttempts int

	BackoffStrategy Backoff
	BaseDelay       time.Duration
	Multiplier      float64
	Jitter          bool

	// RetryStatusCodes lists HTTP response codes that should be treated
	// as retriable failures even though the transport call itself
	// succeeded (e.g. 429, 502, 503).
	RetryStatusCodes map[int]struct{}

	// RetryNonIdempotent allows POST/PATCH to be retried when true;
	// otherwise a failed POST/PATCH is returned to the caller immediately
	// (spec §4.4: "non-idempotent methods are retried only if the caller
	// opts in").
	RetryNonIdempotent bool

	// Timeout is the overall deadline budget for the whole call,
	// including every attempt and every backoff sleep.
	Timeout time.Duration
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultTimeout     = 30 * time.Second
)

// DefaultPolicy returns the executor's baseline policy: three attempts,
// exponential backoff with jitter, 429/502/503/504 retriable, and
// non-idempotent methods not retried.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		BackoffStrategy: BackoffExponential,
		BaseDelay:       DefaultBaseDelay,
		Multiplier:      DefaultMultiplier,
		Jitter:          true,
		RetryStatusCodes: map[int]struct{}{
			http429: {}, http502: {}, http503: {}, http504: {},
		},
		RetryNonIdempotent: false,
		Timeout:            DefaultTimeout,
	}
}

const (
	http429 = 429
	http502 = 502
	http503 = 503
	http504 = 504
)

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffStrategy == "" {
		p.BackoffStrategy = BackoffExponential
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.RetryStatusCodes == nil {
		p.RetryStatusCodes = DefaultPolicy().RetryStatusCodes
	}
	return p
}

// IsIdempotent reports whether method may be retried under this policy:
// always true for the always-idempotent set, otherwise gated on
// RetryNonIdempotent.
func (p Policy) IsIdempotent(method string) bool {
	if _, ok := idempotentMethods[method]; ok {
		return true
	}
	return p.RetryNonIdempotent
}

// IsRetriableStatus reports whether an HTTP status code counts as a
// retriable failure under this policy.
func (p Policy) IsRetriableStatus(statusCode int) bool {
	_, ok := p.RetryStatusCodes[statusCode]
	return ok
}

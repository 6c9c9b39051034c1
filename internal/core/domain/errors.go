package domain

import (
	"fmt"
	"time"
)

// ProxyPoolEmptyError means a strategy had no selectable candidate: either
// the pool is empty or every candidate was filtered out by health or ctx.
type ProxyPoolEmptyError struct {
	Strategy string
	Reason   string
}

func (e *ProxyPoolEmptyError) Error() string {
	return fmt.Sprintf("proxy pool empty for strategy %s: %s", e.Strategy, e.Reason)
}

// AllCircuitsOpenError means every candidate's breaker is open; the executor
// surfaces this as its 503-analogue and does not retry.
type AllCircuitsOpenError struct {
	Candidates int
}

func (e *AllCircuitsOpenError) Error() string {
	return fmt.Sprintf("all circuits open across %d candidate proxies", e.Candidates)
}

// ProxyConnectionError wraps a transport-level failure against one proxy.
type ProxyConnectionError struct {
	Err             error
	ProxyURL        string
	ErrorType       string
	RetryRecommended bool
}

func (e *ProxyConnectionError) Error() string {
	return fmt.Sprintf("connection error via proxy %s (%s): %v", e.ProxyURL, e.ErrorType, e.Err)
}

func (e *ProxyConnectionError) Unwrap() error { return e.Err }

// ProxyAuthenticationError means the proxy rejected our credentials.
type ProxyAuthenticationError struct {
	ProxyURL string
}

func (e *ProxyAuthenticationError) Error() string {
	return fmt.Sprintf("proxy %s rejected credentials", e.ProxyURL)
}

// ProxyTimeoutError means an attempt exceeded its per-attempt or total
// deadline.
type ProxyTimeoutError struct {
	ProxyURL string
	Elapsed  time.Duration
	Budget   time.Duration
}

func (e *ProxyTimeoutError) Error() string {
	return fmt.Sprintf("proxy %s timed out after %v (budget %v)", e.ProxyURL, e.Elapsed, e.Budget)
}

// ProxyValidationError is raised at Proxy construction for malformed input.
type ProxyValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ProxyValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid proxy %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid proxy %s=%v: %s", e.Field, e.Value, e.Reason)
}

// RetriableHttpError wraps an HTTP response whose status is in the policy's
// retry_status_codes set.
type RetriableHttpError struct {
	ProxyURL   string
	StatusCode int
}

func (e *RetriableHttpError) Error() string {
	return fmt.Sprintf("retriable HTTP %d from proxy %s", e.StatusCode, e.ProxyURL)
}

// NonRetriableHttpError wraps an HTTP response outside the retry set; it is
// returned to the caller as-is.
type NonRetriableHttpError struct {
	ProxyURL   string
	StatusCode int
}

func (e *NonRetriableHttpError) Error() string {
	return fmt.Sprintf("non-retriable HTTP %d from proxy %s", e.StatusCode, e.ProxyURL)
}

// PoolCapacityError is returned by AddProxy once the pool is at max_pool_size.
type PoolCapacityError struct {
	MaxSize int
}

func (e *PoolCapacityError) Error() string {
	return fmt.Sprintf("proxy pool at capacity (max %d)", e.MaxSize)
}

// RetryExhaustedError is the final error surfaced by the retry executor once
// every attempt has failed; it carries the ids of every proxy tried so
// callers can see the blast radius without the executor leaking credentials.
type RetryExhaustedError struct {
	Err        error
	TriedProxyIDs []string
	Attempts   int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempt(s) across proxies %v: %v", e.Attempts, e.TriedProxyIDs, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

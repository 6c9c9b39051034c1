package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/pivotrelay/proxyrotator/internal/adapter/breaker"
	"github.com/pivotrelay/proxyrotator/internal/adapter/strategy"
	"github.com/pivotrelay/proxyrotator/internal/core/domain"
	"github.com/pivotrelay/proxyrotator/internal/core/ports"
)

// BreakerLookup resolves the circuit breaker owned by a given proxy ID. The
// rotator is the usual implementation, since it owns the proxy-id -> breaker
// map (spec §4.3: "one breaker instance per proxy").
type BreakerLookup interface {
	Breaker(proxyID string) *breaker.CircuitBreaker
}

// Executor runs the request-execution algorithm described in spec §4.4:
// select a proxy, gate it through its breaker, dispatch through the HTTP
// collaborator, and on a retriable failure select an alternate proxy and
// try again within the policy's attempt and time budget.
//
// Grounded on olla's adapter/proxy/core.RetryHandler.ExecuteWithRetry
// (copy-the-candidate-list, mark-failed, retry loop shape), generalised
// from its connection-error-only retry condition to the spec's combination
// of transport errors, retriable status codes and idempotency gating.
type Executor struct {
	Pool     *domain.Pool
	Strategy strategy.Strategy
	Breakers BreakerLookup
	Client   ports.HTTPClient

	// Failover is used to pick an alternate proxy on the second and later
	// attempts instead of the primary Strategy, since a proxy the primary
	// strategy just failed on should lose ground to one with a better
	// success-rate/latency/geo score rather than simply the next one in
	// round-robin order (spec §4.4 "intelligent failover"). Defaults to
	// strategy.NewIntelligentFailoverSelector.
	Failover strategy.Strategy
}

func NewExecutor(pool *domain.Pool, strat strategy.Strategy, breakers BreakerLookup, client ports.HTTPClient) *Executor {
	return &Executor{
		Pool:     pool,
		Strategy: strat,
		Breakers: breakers,
		Client:   client,
		Failover: strategy.NewIntelligentFailoverSelector(),
	}
}

// Execute runs method/url through the pool under policy, returning the
// final response (successful, non-retriable, or the retriable-status
// response of the last attempt) or an error describing why no attempt
// could complete.
func (e *Executor) Execute(
	ctx context.Context,
	method, url string,
	headers http.Header,
	body []byte,
	policy Policy,
	selCtx *domain.SelectionContext,
) (*ports.Response, error) {
	policy = policy.withDefaults()
	if selCtx == nil {
		selCtx = domain.NewSelectionContext()
	}

	deadline := time.Now().Add(policy.Timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var lastErr error
	var lastResp *ports.Response
	triedIDs := make([]string, 0, policy.MaxAttempts)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if time.Now().After(deadline) {
			return lastResp, &domain.RetryExhaustedError{Err: lastErr, TriedProxyIDs: triedIDs, Attempts: attempt - 1}
		}

		proxy, err := e.selectAdmitted(selCtx, attempt)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return lastResp, err
		}

		triedIDs = append(triedIDs, proxy.ID())
		cb := e.Breakers.Breaker(proxy.ID())

		start := time.Now()
		resp, callErr := e.Client.Do(ctx, method, url, headers, body, proxy.DialURL(), time.Until(deadline))
		elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0

		if callErr != nil {
			if cb != nil {
				cb.RecordFailure()
			}
			e.Strategy.RecordResult(proxy, false, elapsedMs, callErr)
			selCtx.MarkFailed(proxy.ID())
			lastErr = callErr

			if !policy.IsIdempotent(method) {
				return nil, callErr
			}
			if attempt == policy.MaxAttempts {
				break
			}
			e.sleepBackoff(ctx, policy, attempt)
			continue
		}

		if policy.IsRetriableStatus(resp.StatusCode) {
			if cb != nil {
				cb.RecordFailure()
			}
			e.Strategy.RecordResult(proxy, false, elapsedMs, nil)
			selCtx.MarkFailed(proxy.ID())
			lastResp = resp

			if !policy.IsIdempotent(method) {
				return resp, nil
			}
			if attempt == policy.MaxAttempts {
				return resp, nil
			}
			e.sleepBackoff(ctx, policy, attempt)
			continue
		}

		if cb != nil {
			cb.RecordSuccess()
		}
		e.Strategy.RecordResult(proxy, true, elapsedMs, nil)
		return resp, nil
	}

	return lastResp, &domain.RetryExhaustedError{Err: lastErr, TriedProxyIDs: triedIDs, Attempts: len(triedIDs)}
}

// selectAdmitted asks the strategy for a proxy, skipping any whose breaker
// currently refuses requests, up to the size of the pool so a fully-open
// pool fails fast with AllCircuitsOpenError instead of spinning.
func (e *Executor) selectAdmitted(selCtx *domain.SelectionContext, attempt int) (*domain.Proxy, error) {
	maxScan := e.Pool.Size()
	if maxScan <= 0 {
		maxScan = 1
	}

	selector := e.Strategy
	if attempt > 1 && e.Failover != nil {
		selector = e.Failover
	}

	var refused int
	for i := 0; i < maxScan; i++ {
		proxy, err := selector.Select(e.Pool, selCtx)
		if err != nil {
			return nil, err
		}

		cb := e.Breakers.Breaker(proxy.ID())
		if cb == nil || cb.ShouldAttemptRequest() {
			return proxy, nil
		}

		proxy.AbortRequest()
		refused++
		selCtx.MarkFailed(proxy.ID())
	}

	return nil, &domain.AllCircuitsOpenError{Candidates: refused}
}

func (e *Executor) sleepBackoff(ctx context.Context, policy Policy, attempt int) {
	delay := Delay(policy.BackoffStrategy, attempt, policy.BaseDelay, policy.Multiplier, policy.Jitter)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

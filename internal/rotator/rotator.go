// Package rotator composes the pool, the selection strategies, the
// per-proxy circuit breakers, the retry executor and the health monitor
// into the single library surface described in spec §4.5: add_proxy,
// remove_proxy, set_strategy, execute and its HTTP-verb shortcuts, plus the
// operational introspection calls.
//
// Grounded on olla's internal/adapter/proxy/service.go (the top-level
// ProxyService composing a balancer, a discovery service and a transport
// behind one facade), generalised from endpoint-routing to proxy rotation:
// the breaker map and session/health deregistration on remove are new here
// since olla's endpoints don't carry per-request credential state.
package rotator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pivotrelay/proxyrotator/internal/adapter/breaker"
	"github.com/pivotrelay/proxyrotator/internal/adapter/health"
	"github.com/pivotrelay/proxyrotator/internal/adapter/retry"
	"github.com/pivotrelay/proxyrotator/internal/adapter/strategy"
	"github.com/pivotrelay/proxyrotator/internal/core/domain"
	"github.com/pivotrelay/proxyrotator/internal/core/ports"
	"github.com/pivotrelay/proxyrotator/pkg/pool"
)

// selCtxPool recycles SelectionContexts across Execute calls; under a high
// request rate the per-call map allocations this type carries are the
// hottest small allocation in the request path.
var selCtxPool = pool.NewLitePool(domain.NewSelectionContext)

// Forgetter is implemented by strategies that keep per-proxy state outside
// the pool (today only SessionSelector) and need to drop it the instant a
// proxy is removed rather than waiting for a TTL or the next miss.
type Forgetter interface {
	Forget(proxyID string)
}

// Config bundles the sub-component configuration a Rotator builds its
// collaborators from. Every field has a library default via its own
// package, so a zero-value Config is usable.
type Config struct {
	PoolMaxSize   int
	BreakerConfig breaker.Config
	RetryPolicy   retry.Policy
	HealthConfig  health.Config
}

// Rotator is the library's single façade: construct one per logical proxy
// fleet, seed it with proxies, and call Execute (or a verb shortcut) per
// outbound request.
type Rotator struct {
	pool   *domain.Pool
	client ports.HTTPClient

	mu       sync.RWMutex
	strategy strategy.Strategy

	breakersMu sync.Mutex
	breakers   map[string]*breaker.CircuitBreaker
	cbConfig   breaker.Config

	retryPolicy retry.Policy

	monitor    *health.Monitor
	monitorCfg health.Config
	stopEvict  context.CancelFunc
}

// New builds a Rotator around client, an optional initial set of proxies, a
// strategy (round-robin when strat is nil) and a
// Config. proxies may be nil; they can also be added later via AddProxy.
func New(client ports.HTTPClient, proxies []*domain.Proxy, strat strategy.Strategy, cfg Config) (*Rotator, error) {
	pool := domain.NewPool(cfg.PoolMaxSize)

	if strat == nil {
		strat = strategy.NewRoundRobinSelector()
	}

	r := &Rotator{
		pool:        pool,
		client:      client,
		strategy:    strat,
		breakers:    make(map[string]*breaker.CircuitBreaker),
		cbConfig:    cfg.BreakerConfig,
		retryPolicy: cfg.RetryPolicy,
		monitorCfg:  cfg.HealthConfig,
	}

	for _, p := range proxies {
		if err := r.AddProxy(p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// AddProxy adds p to the pool and gives it a fresh closed circuit breaker.
// Adding a proxy whose URL is already present is a no-op (spec §3.2).
func (r *Rotator) AddProxy(p *domain.Proxy) error {
	if err := r.pool.AddProxy(p); err != nil {
		return err
	}
	if got, ok := r.pool.GetProxyByID(p.ID()); !ok || got != p {
		return nil // duplicate URL: the pool kept the earlier proxy
	}

	r.breakersMu.Lock()
	if _, exists := r.breakers[p.ID()]; !exists {
		r.breakers[p.ID()] = breaker.NewCircuitBreaker(r.cbConfig)
	}
	r.breakersMu.Unlock()
	return nil
}

// RemoveProxy drops id from the pool, its circuit breaker and any
// strategy-owned session state, and from the health monitor's
// bookkeeping, so a re-added proxy with the same URL starts clean.
func (r *Rotator) RemoveProxy(id string) {
	var proxyURL string
	if p, ok := r.pool.GetProxyByID(id); ok {
		proxyURL = p.URL()
	}

	r.pool.RemoveProxy(id)

	r.breakersMu.Lock()
	delete(r.breakers, id)
	r.breakersMu.Unlock()

	r.mu.RLock()
	current := r.strategy
	r.mu.RUnlock()
	if f, ok := current.(Forgetter); ok {
		f.Forget(id)
	}

	if r.monitor != nil && proxyURL != "" {
		r.monitor.Forget(proxyURL)
	}
}

// ClearUnhealthy removes every unhealthy/dead proxy and its breaker entry.
func (r *Rotator) ClearUnhealthy() int {
	return r.clearMatching(r.pool.ClearUnhealthy)
}

// ClearExpired removes every expired proxy and its breaker entry.
func (r *Rotator) ClearExpired() int {
	return r.clearMatching(r.pool.ClearExpired)
}

// clearMatching runs a pool-level bulk removal and reconciles the breaker
// map against whatever remains, since the bulk pool operations don't report
// which ids they dropped.
func (r *Rotator) clearMatching(op func() int) int {
	removed := op()
	if removed == 0 {
		return 0
	}

	remaining := make(map[string]struct{})
	for _, p := range r.pool.GetAllProxies() {
		remaining[p.ID()] = struct{}{}
	}

	r.breakersMu.Lock()
	for id := range r.breakers {
		if _, ok := remaining[id]; !ok {
			delete(r.breakers, id)
		}
	}
	r.breakersMu.Unlock()
	return removed
}

// Breaker resolves a proxy's circuit breaker, satisfying retry.BreakerLookup
// and health.BreakerLookup.
func (r *Rotator) Breaker(proxyID string) *breaker.CircuitBreaker {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()
	return r.breakers[proxyID]
}

// SetStrategy atomically swaps the active selection strategy. In-flight
// Execute calls keep using the strategy they read at their own start (spec
// §5 "set_strategy reads-once at the start of execute").
func (r *Rotator) SetStrategy(s strategy.Strategy) {
	r.mu.Lock()
	r.strategy = s
	r.mu.Unlock()
}

// SetStrategyByName builds s from the package-level strategy registry and
// installs it.
func (r *Rotator) SetStrategyByName(name string) error {
	s, err := strategy.Build(name)
	if err != nil {
		return err
	}
	r.SetStrategy(s)
	return nil
}

// Execute runs method/url through the pool using the retry executor and the
// rotator's current strategy, breaker map and retry policy (spec §4.4,
// §4.5). A nil policy uses the rotator's configured default. Execute carries
// no session/geo/tag hints; use ExecuteWith to supply them.
func (r *Rotator) Execute(ctx context.Context, method, url string, headers http.Header, body []byte, policy *retry.Policy) (*ports.Response, error) {
	return r.ExecuteWith(ctx, method, url, headers, body, policy, nil)
}

// ExecuteWith is Execute plus an optional SelectionContext carrying
// request-plane hints through to the strategies that read them: SessionID
// (session-persistence), TargetCountry/TargetRegion (geo-targeted) and
// RequiredTags (tag filtering shared by every strategy via candidates())
// (spec §3.3, §4.2, §6 "execute(..., options?)"). opts.FailedProxyIDs is
// ignored; every call starts with its own clean exclusion set. A nil opts
// behaves exactly like Execute.
func (r *Rotator) ExecuteWith(ctx context.Context, method, url string, headers http.Header, body []byte, policy *retry.Policy, opts *domain.SelectionContext) (*ports.Response, error) {
	r.mu.RLock()
	strat := r.strategy
	r.mu.RUnlock()

	p := r.retryPolicy
	if policy != nil {
		p = *policy
	}

	selCtx := selCtxPool.Get()
	defer selCtxPool.Put(selCtx)
	if opts != nil {
		selCtx.SessionID = opts.SessionID
		selCtx.TargetCountry = opts.TargetCountry
		selCtx.TargetRegion = opts.TargetRegion
		for tag := range opts.RequiredTags {
			selCtx.RequiredTags[tag] = struct{}{}
		}
	}

	exec := retry.NewExecutor(r.pool, strat, r, r.client)
	return exec.Execute(ctx, method, url, headers, body, p, selCtx)
}

// Get issues a GET through the rotator.
func (r *Rotator) Get(ctx context.Context, url string, headers http.Header) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodGet, url, headers, nil, nil)
}

// Post issues a POST through the rotator.
func (r *Rotator) Post(ctx context.Context, url string, headers http.Header, body []byte) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodPost, url, headers, body, nil)
}

// Put issues a PUT through the rotator.
func (r *Rotator) Put(ctx context.Context, url string, headers http.Header, body []byte) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodPut, url, headers, body, nil)
}

// Delete issues a DELETE through the rotator.
func (r *Rotator) Delete(ctx context.Context, url string, headers http.Header) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodDelete, url, headers, nil, nil)
}

// Patch issues a PATCH through the rotator.
func (r *Rotator) Patch(ctx context.Context, url string, headers http.Header, body []byte) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodPatch, url, headers, body, nil)
}

// Head issues a HEAD through the rotator.
func (r *Rotator) Head(ctx context.Context, url string, headers http.Header) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodHead, url, headers, nil, nil)
}

// Options issues an OPTIONS through the rotator.
func (r *Rotator) Options(ctx context.Context, url string, headers http.Header) (*ports.Response, error) {
	return r.Execute(ctx, http.MethodOptions, url, headers, nil, nil)
}

// BreakerState is the operational view of one proxy's breaker (spec §4.5
// "get_circuit_breaker_states").
type BreakerState struct {
	ProxyID  string
	ProxyURL string
	Snapshot breaker.Snapshot
}

// GetCircuitBreakerStates returns a snapshot of every proxy's breaker.
func (r *Rotator) GetCircuitBreakerStates() []BreakerState {
	proxies := r.pool.GetAllProxies()

	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	out := make([]BreakerState, 0, len(proxies))
	for _, p := range proxies {
		cb, ok := r.breakers[p.ID()]
		if !ok {
			continue
		}
		out = append(out, BreakerState{ProxyID: p.ID(), ProxyURL: p.URL(), Snapshot: cb.Snapshot()})
	}
	return out
}

// ResetCircuitBreaker forces a single proxy's breaker back to closed.
func (r *Rotator) ResetCircuitBreaker(proxyID string) {
	if cb := r.Breaker(proxyID); cb != nil {
		cb.Reset()
	}
}

// Statistics is the pool-wide aggregate returned by GetStatistics (spec
// §4.5 "pool-level aggregates + source breakdown").
type Statistics struct {
	Pool domain.Stats
}

// GetStatistics returns the pool's current aggregate counters.
func (r *Rotator) GetStatistics() Statistics {
	return Statistics{Pool: r.pool.Stats()}
}

// GetPoolStats is an alias kept for the library surface named in spec §6
// ("get_pool_stats" distinct from "get_statistics" by name only).
func (r *Rotator) GetPoolStats() domain.Stats {
	return r.pool.Stats()
}

// RetryMetrics summarises breaker-visible retry pressure across the fleet:
// how many proxies are presently open/half-open, which is the cheapest
// signal the rotator can report without the executor threading per-call
// telemetry back through a shared counter.
type RetryMetrics struct {
	TotalProxies int
	OpenBreakers int
	HalfOpen     int
	Closed       int
}

// GetRetryMetrics reports the current distribution of breaker states.
func (r *Rotator) GetRetryMetrics() RetryMetrics {
	states := r.GetCircuitBreakerStates()
	m := RetryMetrics{TotalProxies: len(states)}
	for _, s := range states {
		switch s.Snapshot.State {
		case breaker.Open:
			m.OpenBreakers++
		case breaker.HalfOpen:
			m.HalfOpen++
		default:
			m.Closed++
		}
	}
	return m
}

// StartHealthMonitoring begins probing every proxy in the pool on
// cfg.HealthConfig's interval via checker. Calling it again while already
// running stops the running monitor and starts a new one with the new
// checker.
//
// On top of the generic health.Monitor's own consecutive-failure
// bookkeeping, the rotator runs a light eviction sweep every interval that
// removes any proxy the monitor has marked dead (spec §4.6 step 5: "remove
// the proxy from the pool"), keeping that policy decision in the rotator
// rather than the reusable monitor.
func (r *Rotator) StartHealthMonitoring(ctx context.Context, checker health.Checker) {
	r.StopHealthMonitoring()

	r.monitor = health.NewMonitor(r.pool, checker, r.monitorCfg)
	r.monitor.SetBreakers(r)
	r.monitor.Start(ctx)

	evictCtx, cancel := context.WithCancel(ctx)
	r.stopEvict = cancel
	go r.evictDeadLoop(evictCtx)
}

// StopHealthMonitoring halts the probe loop and the eviction sweep; a no-op
// if monitoring was never started.
func (r *Rotator) StopHealthMonitoring() {
	if r.monitor != nil {
		r.monitor.Stop()
		r.monitor = nil
	}
	if r.stopEvict != nil {
		r.stopEvict()
		r.stopEvict = nil
	}
}

// GetHealthStatus returns the monitor's per-proxy bookkeeping, or nil if
// monitoring has not been started.
func (r *Rotator) GetHealthStatus() map[string]health.Status {
	if r.monitor == nil {
		return nil
	}
	return r.monitor.GetStatus()
}

func (r *Rotator) evictDeadLoop(ctx context.Context) {
	interval := r.monitorCfg.CheckInterval
	if interval <= 0 {
		interval = health.DefaultCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictDead()
		}
	}
}

func (r *Rotator) evictDead() {
	if r.monitor == nil {
		return
	}
	for id, status := range r.monitor.GetStatus() {
		if status.HealthStatus == domain.HealthDead {
			r.RemoveProxy(id)
		}
	}
}

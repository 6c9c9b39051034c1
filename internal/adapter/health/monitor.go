// Package health implements the background health monitor (spec §3.6,
// §4.6): a ticking probe loop that re-checks every proxy in the pool,
// tracks its own consecutive-failure count independent of the proxy's
// lifetime counters, and evicts a proxy's health status once that count
// reaches the configured threshold.
//
// Grounded on olla's internal/adapter/health.HealthScheduler (ticking
// loop driving concurrent checks) and HTTPHealthChecker (per-endpoint
// probe + failure bookkeeping), simplified from its heap-based
// due-time scheduler to a flat interval tick since the spec calls for one
// uniform check_interval rather than per-endpoint backoff scheduling.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pivotrelay/proxyrotator/internal/adapter/breaker"
	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

// BreakerLookup resolves the circuit breaker owned by a given proxy ID, so a
// probe outcome can feed the same breaker a live request attempt would
// (spec §2 "feeding the same breakers", §4.6 steps 4-5). The rotator is the
// usual implementation. A Monitor with no BreakerLookup set still tracks its
// own consecutive-failure count and proxy health status, just without
// touching any breaker.
type BreakerLookup interface {
	Breaker(proxyID string) *breaker.CircuitBreaker
}

// Checker probes a single proxy and reports whether it's reachable. The
// caller supplies this; the monitor has no opinion on what "healthy"
// means for a given deployment (ping a known URL, open a TCP connection,
// etc).
type Checker func(ctx context.Context, proxy *domain.Proxy) error

const (
	DefaultCheckInterval    = 30 * time.Second
	DefaultFailureThreshold = 3
	DefaultConcurrency      = 8
)

// Config tunes a Monitor.
type Config struct {
	CheckInterval    time.Duration
	FailureThreshold int
	Concurrency      int
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Status is a point-in-time view of one proxy's monitor bookkeeping.
type Status struct {
	ConsecutiveFailures int
	LastChecked         time.Time
	HealthStatus        domain.HealthStatus
}

// Monitor runs Checker against every proxy in a Pool on a fixed interval.
type Monitor struct {
	pool    *domain.Pool
	checker Checker
	cfg     Config

	mu       sync.Mutex
	failures map[string]int // proxy URL -> consecutive failures, independent of Proxy's own counter
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	breakers BreakerLookup
}

func NewMonitor(pool *domain.Pool, checker Checker, cfg Config) *Monitor {
	return &Monitor{
		pool:     pool,
		checker:  checker,
		cfg:      cfg.withDefaults(),
		failures: make(map[string]int),
	}
}

// SetBreakers wires bl in so every subsequent probe outcome also calls
// RecordSuccess/RecordFailure on that proxy's breaker. Call before Start;
// set to nil to go back to tracking health status only.
func (m *Monitor) SetBreakers(bl BreakerLookup) {
	m.mu.Lock()
	m.breakers = bl
	m.mu.Unlock()
}

// Start begins the probe loop. Calling Start on an already-running Monitor
// is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx, stopCh)
}

// Stop halts the probe loop and waits for the in-flight tick to finish.
// Calling Stop when not running is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context, stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick probes every proxy currently in the pool concurrently, bounded by
// cfg.Concurrency, and folds the outcomes back into the monitor's own
// failure-count map and each proxy's health status.
func (m *Monitor) tick(ctx context.Context) {
	proxies := m.pool.GetAllProxies()
	if len(proxies) == 0 {
		return
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(m.cfg.Concurrency)

	for _, p := range proxies {
		proxy := p
		group.Go(func() error {
			m.probeOne(gctx, proxy)
			return nil
		})
	}

	_ = group.Wait()
}

func (m *Monitor) probeOne(ctx context.Context, proxy *domain.Proxy) {
	err := m.checker(ctx, proxy)
	proxy.Touch(time.Now())

	key := proxy.URL()

	m.mu.Lock()
	breakers := m.breakers
	defer m.mu.Unlock()

	var cb *breaker.CircuitBreaker
	if breakers != nil {
		cb = breakers.Breaker(proxy.ID())
	}

	if err == nil {
		delete(m.failures, key)
		if proxy.HealthStatus() != domain.HealthHealthy {
			proxy.SetHealthStatus(domain.HealthHealthy)
		}
		if cb != nil {
			cb.RecordSuccess()
		}
		return
	}

	m.failures[key]++
	if m.failures[key] >= m.cfg.FailureThreshold {
		proxy.SetHealthStatus(domain.HealthDead)
	} else {
		proxy.SetHealthStatus(domain.HealthDegraded)
	}
	if cb != nil {
		cb.RecordFailure()
	}
}

// GetStatus returns a snapshot of the monitor's bookkeeping for every
// proxy currently in the pool; a proxy not yet probed reports zero
// consecutive failures.
func (m *Monitor) GetStatus() map[string]Status {
	proxies := m.pool.GetAllProxies()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Status, len(proxies))
	for _, p := range proxies {
		out[p.ID()] = Status{
			ConsecutiveFailures: m.failures[p.URL()],
			LastChecked:         p.LastChecked(),
			HealthStatus:        p.HealthStatus(),
		}
	}
	return out
}

// Forget drops any bookkeeping for a proxy that has been removed from the
// pool, so a reused URL doesn't inherit a stale failure count.
func (m *Monitor) Forget(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, proxyURL)
}

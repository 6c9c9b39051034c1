package strategy

import (
	"fmt"
	"testing"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

func newHealthyPool(t *testing.T, n int) *domain.Pool {
	t.Helper()
	pool := domain.NewPool(n + 1)
	for i := 0; i < n; i++ {
		p, err := domain.NewProxy(domain.NewProxyOptions{URL: fmt.Sprintf("http://10.0.0.%d:8080", i)})
		if err != nil {
			t.Fatalf("NewProxy: %v", err)
		}
		p.SetHealthStatus(domain.HealthHealthy)
		if err := pool.AddProxy(p); err != nil {
			t.Fatalf("AddProxy: %v", err)
		}
	}
	return pool
}

// TestRoundRobin_FairnessOverWindow is the spec's round-robin fairness
// invariant (§8.1): any window of k*N consecutive selections contains each
// of N healthy proxies exactly k times.
func TestRoundRobin_FairnessOverWindow(t *testing.T) {
	pool := newHealthyPool(t, 3)
	rr := NewRoundRobinSelector()

	const k = 4
	counts := make(map[string]int)
	for i := 0; i < k*3; i++ {
		p, err := rr.Select(pool, nil)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		counts[p.ID()] = counts[p.ID()] + 1
	}

	for id, c := range counts {
		if c != k {
			t.Fatalf("proxy %s selected %d times, expected exactly %d", id, c, k)
		}
	}
	if len(counts) != 3 {
		t.Fatalf("expected all 3 proxies selected at least once, got %d distinct", len(counts))
	}
}

func TestRoundRobin_EmptyPoolReturnsPoolEmptyError(t *testing.T) {
	pool := domain.NewPool(10)
	rr := NewRoundRobinSelector()

	_, err := rr.Select(pool, nil)
	if _, ok := err.(*domain.ProxyPoolEmptyError); !ok {
		t.Fatalf("expected *domain.ProxyPoolEmptyError, got %T (%v)", err, err)
	}
}

func TestRoundRobin_ExcludesFailedProxyIDs(t *testing.T) {
	pool := newHealthyPool(t, 2)
	rr := NewRoundRobinSelector()

	all := pool.GetAllProxies()
	ctx := domain.NewSelectionContext()
	ctx.MarkFailed(all[0].ID())

	for i := 0; i < 5; i++ {
		p, err := rr.Select(pool, ctx)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if p.ID() == all[0].ID() {
			t.Fatal("expected the excluded proxy to never be selected")
		}
	}
}

func TestRoundRobin_Select_CallsStartRequest(t *testing.T) {
	pool := newHealthyPool(t, 1)
	rr := NewRoundRobinSelector()

	p, err := rr.Select(pool, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.RequestsStarted() != 1 {
		t.Fatalf("expected Select to call StartRequest, requests_started=%d", p.RequestsStarted())
	}
}
